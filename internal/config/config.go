package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Overflow policies for the bounded audio buffers.
const (
	OverflowDropOldest = "drop_oldest"
	OverflowBlock      = "block"
)

// Final-commit policies applied to a partially filled commit window on teardown.
const (
	FinalCommitAttempt = "commit"
	FinalCommitDiscard = "discard"
)

// Config represents the complete service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Audio    AudioConfig    `yaml:"audio"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP/WebSocket server configuration
type ServerConfig struct {
	Port                  int    `yaml:"port"`
	BindAddress           string `yaml:"bind_address"`
	ReadLimitBytes        int64  `yaml:"read_limit_bytes"`
	MaxConcurrentSessions int64  `yaml:"max_concurrent_sessions"`
}

// RealtimeConfig contains the upstream speech-service connection configuration
type RealtimeConfig struct {
	URL            string              `yaml:"url"`
	APIKey         string              `yaml:"api_key"`
	Model          string              `yaml:"model"`
	Voice          string              `yaml:"voice"`
	Instructions   string              `yaml:"instructions"`
	Greeting       string              `yaml:"greeting"`
	TurnDetection  TurnDetectionConfig `yaml:"turn_detection"`
	ErrorThreshold int                 `yaml:"error_threshold"`
}

// TurnDetectionConfig contains the upstream turn-detection parameters
type TurnDetectionConfig struct {
	Type              string  `yaml:"type"`
	Threshold         float64 `yaml:"threshold"`
	SilenceDurationMs int     `yaml:"silence_duration_ms"`
}

// AudioConfig contains the audio formats carried on the two legs
type AudioConfig struct {
	TelephonyEncoding   string `yaml:"telephony_encoding"`
	TelephonySampleRate int    `yaml:"telephony_sample_rate"`
	UpstreamEncoding    string `yaml:"upstream_encoding"`
	UpstreamSampleRate  int    `yaml:"upstream_sample_rate"`
	FrameDurationMs     int    `yaml:"frame_duration_ms"`
}

// BridgeConfig contains inbound/outbound path timing and buffering parameters
type BridgeConfig struct {
	AppendIntervalMs  int    `yaml:"append_interval_ms"`
	CommitIntervalMs  int    `yaml:"commit_interval_ms"`
	MinCommitMs       int    `yaml:"min_commit_ms"`
	FinalCommit       string `yaml:"final_commit"`
	PendingQueueLimit int    `yaml:"pending_queue_limit"`
	HeldFrameLimit    int    `yaml:"held_frame_limit"`
	BufferLimitBytes  int    `yaml:"buffer_limit_bytes"`
	OverflowPolicy    string `yaml:"overflow_policy"`
	CompletionMark    string `yaml:"completion_mark"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Realtime.Validate(); err != nil {
		return fmt.Errorf("realtime config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Bridge.Validate(); err != nil {
		return fmt.Errorf("bridge config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.ReadLimitBytes < 1024 {
		return fmt.Errorf("read_limit_bytes must be at least 1024, got %d", s.ReadLimitBytes)
	}

	if s.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be at least 1, got %d", s.MaxConcurrentSessions)
	}

	return nil
}

// Validate validates the upstream connection configuration
func (r *RealtimeConfig) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}

	if r.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if r.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if r.ErrorThreshold < 1 {
		return fmt.Errorf("error_threshold must be at least 1, got %d", r.ErrorThreshold)
	}

	if r.TurnDetection.Type != "" && r.TurnDetection.Type != "server_vad" && r.TurnDetection.Type != "none" {
		return fmt.Errorf("turn_detection.type must be 'server_vad' or 'none', got '%s'", r.TurnDetection.Type)
	}

	if r.TurnDetection.Threshold < 0 || r.TurnDetection.Threshold > 1 {
		return fmt.Errorf("turn_detection.threshold must be between 0 and 1, got %f", r.TurnDetection.Threshold)
	}

	if r.TurnDetection.SilenceDurationMs < 0 {
		return fmt.Errorf("turn_detection.silence_duration_ms cannot be negative, got %d", r.TurnDetection.SilenceDurationMs)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.TelephonyEncoding != "mulaw" {
		return fmt.Errorf("telephony_encoding must be 'mulaw', got '%s'", a.TelephonyEncoding)
	}

	if a.TelephonySampleRate != 8000 {
		return fmt.Errorf("telephony_sample_rate must be 8000 Hz, got %d", a.TelephonySampleRate)
	}

	if a.UpstreamEncoding != "pcm16" {
		return fmt.Errorf("upstream_encoding must be 'pcm16', got '%s'", a.UpstreamEncoding)
	}

	if a.UpstreamSampleRate != 16000 {
		return fmt.Errorf("upstream_sample_rate must be 16000 Hz, got %d", a.UpstreamSampleRate)
	}

	if a.FrameDurationMs < 10 || a.FrameDurationMs > 100 {
		return fmt.Errorf("frame_duration_ms must be between 10 and 100, got %d", a.FrameDurationMs)
	}

	return nil
}

// Validate validates bridge timing and buffering configuration
func (b *BridgeConfig) Validate() error {
	if b.AppendIntervalMs < 20 {
		return fmt.Errorf("append_interval_ms must be at least 20, got %d", b.AppendIntervalMs)
	}

	if b.CommitIntervalMs < b.AppendIntervalMs {
		return fmt.Errorf("commit_interval_ms (%d) must not be smaller than append_interval_ms (%d)",
			b.CommitIntervalMs, b.AppendIntervalMs)
	}

	// The upstream rejects commits shorter than 100ms of audio.
	if b.MinCommitMs < 100 {
		return fmt.Errorf("min_commit_ms must be at least 100, got %d", b.MinCommitMs)
	}

	if b.FinalCommit != FinalCommitAttempt && b.FinalCommit != FinalCommitDiscard {
		return fmt.Errorf("final_commit must be '%s' or '%s', got '%s'",
			FinalCommitAttempt, FinalCommitDiscard, b.FinalCommit)
	}

	if b.PendingQueueLimit < 1 {
		return fmt.Errorf("pending_queue_limit must be at least 1, got %d", b.PendingQueueLimit)
	}

	if b.HeldFrameLimit < 1 {
		return fmt.Errorf("held_frame_limit must be at least 1, got %d", b.HeldFrameLimit)
	}

	if b.BufferLimitBytes < 1024 {
		return fmt.Errorf("buffer_limit_bytes must be at least 1024, got %d", b.BufferLimitBytes)
	}

	if b.OverflowPolicy != OverflowDropOldest && b.OverflowPolicy != OverflowBlock {
		return fmt.Errorf("overflow_policy must be '%s' or '%s', got '%s'",
			OverflowDropOldest, OverflowBlock, b.OverflowPolicy)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetAppendInterval returns the append cadence as a time.Duration
func (b *BridgeConfig) GetAppendInterval() time.Duration {
	return time.Duration(b.AppendIntervalMs) * time.Millisecond
}

// GetCommitInterval returns the commit cadence as a time.Duration
func (b *BridgeConfig) GetCommitInterval() time.Duration {
	return time.Duration(b.CommitIntervalMs) * time.Millisecond
}

// GetMinCommitDuration returns the minimum commit window as a time.Duration
func (b *BridgeConfig) GetMinCommitDuration() time.Duration {
	return time.Duration(b.MinCommitMs) * time.Millisecond
}

// GetFrameDuration returns the telephony frame duration as a time.Duration
func (a *AudioConfig) GetFrameDuration() time.Duration {
	return time.Duration(a.FrameDurationMs) * time.Millisecond
}
