package config

import "encoding/json"

// ConfigSanitizer redacts secret-bearing fields from a Config before it is
// logged or otherwise surfaced to an operator.
type ConfigSanitizer interface {
	Sanitize(cfg *Config) *Config
}

// DefaultConfigSanitizer replaces secrets with a fixed placeholder.
type DefaultConfigSanitizer struct {
	redactionValue string
}

// NewDefaultConfigSanitizer returns a ConfigSanitizer using "***REDACTED***".
func NewDefaultConfigSanitizer() ConfigSanitizer {
	return &DefaultConfigSanitizer{redactionValue: "***REDACTED***"}
}

// NewConfigSanitizer returns a ConfigSanitizer using a custom placeholder.
func NewConfigSanitizer(redactionValue string) ConfigSanitizer {
	return &DefaultConfigSanitizer{redactionValue: redactionValue}
}

// Sanitize returns a copy of cfg with the Redis and Postgres passwords
// redacted. The original is left untouched.
func (s *DefaultConfigSanitizer) Sanitize(cfg *Config) *Config {
	sanitized := s.deepCopy(cfg)
	if sanitized.Redis.Password != "" {
		sanitized.Redis.Password = s.redactionValue
	}
	if sanitized.Postgres.Password != "" {
		sanitized.Postgres.Password = s.redactionValue
	}
	return sanitized
}

func (s *DefaultConfigSanitizer) deepCopy(cfg *Config) *Config {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var cp Config
	if err := json.Unmarshal(raw, &cp); err != nil {
		return cfg
	}
	return &cp
}
