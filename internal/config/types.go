// Package config resolves, parses, validates, and defaults parley configuration.
package config

import (
	"encoding/json"
	"net/http"
	"time"
)

// Config is the fully materialized runtime configuration used by parley.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Audio   AudioConfig
	Cue     CueConfig
	Debug   DebugConfig
}

// ServerConfig locates the remote voice service.
type ServerConfig struct {
	URL                string
	HandshakeTimeoutMS int
	ConfigureTimeoutMS int
	Headers            map[string]string
}

// HandshakeTimeout bounds the websocket dial.
func (s ServerConfig) HandshakeTimeout() time.Duration {
	return time.Duration(s.HandshakeTimeoutMS) * time.Millisecond
}

// ConfigureTimeout bounds the wait for the ready frame. Zero means no limit.
func (s ServerConfig) ConfigureTimeout() time.Duration {
	return time.Duration(s.ConfigureTimeoutMS) * time.Millisecond
}

// Header returns the extra dial headers as an http.Header.
func (s ServerConfig) Header() http.Header {
	header := make(http.Header, len(s.Headers))
	for name, value := range s.Headers {
		header.Set(name, value)
	}
	return header
}

// SessionConfig selects the session flavor and its handshake payload.
type SessionConfig struct {
	Flavor     string
	Payload    json.RawMessage
	AutoRecord bool
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input     string
	Fallback  string
	BlockSize int
}

// CueConfig controls audible status cues.
type CueConfig struct {
	Enable bool
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
	EnableFrameDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
