package config

import "github.com/rbright/parley/internal/audio"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:                "ws://127.0.0.1:8000/ws",
			HandshakeTimeoutMS: 10000,
			ConfigureTimeoutMS: 15000,
			Headers:            map[string]string{},
		},
		Session: SessionConfig{
			Flavor:     "interview",
			AutoRecord: true,
		},
		Audio: AudioConfig{
			Input:     "default",
			Fallback:  "default",
			BlockSize: audio.DefaultBlockSize,
		},
		Cue:   CueConfig{Enable: true},
		Debug: DebugConfig{},
	}
}
