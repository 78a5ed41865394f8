package config

import "fmt"

// MaxPerListCap is the hard ceiling on verified replies per list scan.
const MaxPerListCap = 5

// SessionConfig bounds the work done in one pass.
type SessionConfig struct {
	PerListCap int `yaml:"per_list_cap"`
}

// ValidateSession checks the per-list cap is within 1..MaxPerListCap.
func (c *Config) ValidateSession() error {
	if c.Session.PerListCap < 1 || c.Session.PerListCap > MaxPerListCap {
		return fmt.Errorf("session.per_list_cap must be between 1 and %d, got %d", MaxPerListCap, c.Session.PerListCap)
	}
	return nil
}
