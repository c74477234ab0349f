package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type jsoncConfig struct {
	Server  *jsoncServer  `json:"server"`
	Session *jsoncSession `json:"session"`
	Audio   *jsoncAudio   `json:"audio"`
	Cue     *jsoncCue     `json:"cue"`
	Debug   *jsoncDebug   `json:"debug"`
}

type jsoncServer struct {
	URL                *string           `json:"url"`
	HandshakeTimeoutMS *int              `json:"handshake_timeout_ms"`
	ConfigureTimeoutMS *int              `json:"configure_timeout_ms"`
	Headers            map[string]string `json:"headers"`
}

type jsoncSession struct {
	Flavor     *string         `json:"flavor"`
	Payload    json.RawMessage `json:"payload"`
	AutoRecord *bool           `json:"auto_record"`
}

type jsoncAudio struct {
	Input     *string `json:"input"`
	Fallback  *string `json:"fallback"`
	BlockSize *int    `json:"block_size"`
}

type jsoncCue struct {
	Enable *bool `json:"enable"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
	FrameDump *bool `json:"frame_dump"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	plain, err := stripJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(plain))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, locateDecodeError(plain, err)
	}
	if err := rejectTrailingData(decoder); err != nil {
		return Config{}, nil, locateDecodeError(plain, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if payload.Server != nil {
		if payload.Server.URL != nil {
			cfg.Server.URL = strings.TrimSpace(*payload.Server.URL)
		}
		if payload.Server.HandshakeTimeoutMS != nil {
			cfg.Server.HandshakeTimeoutMS = *payload.Server.HandshakeTimeoutMS
		}
		if payload.Server.ConfigureTimeoutMS != nil {
			cfg.Server.ConfigureTimeoutMS = *payload.Server.ConfigureTimeoutMS
		}
		if payload.Server.Headers != nil {
			headers := make(map[string]string, len(payload.Server.Headers))
			for name, value := range payload.Server.Headers {
				trimmedName := strings.TrimSpace(name)
				if trimmedName == "" {
					return nil, fmt.Errorf("server.headers contains an empty header name")
				}
				headers[trimmedName] = value
			}
			cfg.Server.Headers = headers
		}
	}

	if payload.Session != nil {
		if payload.Session.Flavor != nil {
			cfg.Session.Flavor = strings.ToLower(strings.TrimSpace(*payload.Session.Flavor))
		}
		if payload.Session.Payload != nil {
			raw := bytes.TrimSpace(payload.Session.Payload)
			switch {
			case bytes.Equal(raw, []byte("null")):
				cfg.Session.Payload = nil
			case len(raw) > 0 && raw[0] == '{':
				cfg.Session.Payload = append(json.RawMessage(nil), raw...)
			default:
				return nil, fmt.Errorf("session.payload must be a JSON object")
			}
		}
		if payload.Session.AutoRecord != nil {
			cfg.Session.AutoRecord = *payload.Session.AutoRecord
		}
	}

	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
		if payload.Audio.BlockSize != nil {
			cfg.Audio.BlockSize = *payload.Audio.BlockSize
		}
	}

	if payload.Cue != nil && payload.Cue.Enable != nil {
		cfg.Cue.Enable = *payload.Cue.Enable
	}

	if payload.Debug != nil {
		if payload.Debug.AudioDump != nil {
			cfg.Debug.EnableAudioDump = *payload.Debug.AudioDump
		}
		if payload.Debug.FrameDump != nil {
			cfg.Debug.EnableFrameDump = *payload.Debug.FrameDump
		}
	}

	return warnings, nil
}
