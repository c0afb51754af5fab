// Package settings manages persistent user settings for the vtpsync CLI,
// overlaid with VTPSYNC_* environment variables.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/caarlos0/env/v9"
)

// Persist methods.
const (
	PersistSNMP = "snmp"
	PersistSSH  = "ssh"
)

// Settings holds persistent user preferences. Secrets are only read from
// the environment and never written to disk.
type Settings struct {
	// Inventory is the inventory file used when -I is not given.
	Inventory string `json:"inventory,omitempty" env:"VTPSYNC_INVENTORY"`

	// Owner is written to the VTP edit buffer while vtpsync holds it.
	Owner string `json:"owner,omitempty" env:"VTPSYNC_OWNER"`

	// Parallelism bounds concurrent device reconciliations.
	Parallelism int `json:"parallelism,omitempty" env:"VTPSYNC_PARALLELISM"`

	// SNMPVersion is "2c" or "3".
	SNMPVersion string `json:"snmp_version,omitempty" env:"VTPSYNC_SNMP_VERSION"`
	SNMPUser    string `json:"snmp_user,omitempty" env:"VTPSYNC_SNMP_USER"`

	// AuditLog is the JSON-lines audit file.
	AuditLog string `json:"audit_log,omitempty" env:"VTPSYNC_AUDIT_LOG"`

	// Redis enables per-device locking against this server.
	Redis string `json:"redis,omitempty" env:"VTPSYNC_REDIS"`

	// Persist selects how the running config is saved: snmp or ssh.
	Persist    string `json:"persist,omitempty" env:"VTPSYNC_PERSIST"`
	SSHUser    string `json:"ssh_user,omitempty" env:"VTPSYNC_SSH_USER"`
	KnownHosts string `json:"known_hosts,omitempty" env:"VTPSYNC_KNOWN_HOSTS"`

	Community    string `json:"-" env:"VTPSYNC_COMMUNITY"`
	SNMPAuthPass string `json:"-" env:"VTPSYNC_SNMP_AUTH_PASS"`
	SNMPPrivPass string `json:"-" env:"VTPSYNC_SNMP_PRIV_PASS"`
	SSHPassword  string `json:"-" env:"VTPSYNC_SSH_PASSWORD"`
}

// DefaultSettingsPath returns the default path for the settings file.
func DefaultSettingsPath() string {
	return filepath.Join(baseDir(), "settings.json")
}

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vtpsync"
	}
	return filepath.Join(home, ".vtpsync")
}

// Load reads settings from the default location and applies the
// environment.
func Load() (*Settings, error) {
	s, err := LoadFrom(DefaultSettingsPath())
	if err != nil {
		return nil, err
	}
	if err := s.ApplyEnv(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFrom reads settings from path. A missing file yields empty settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// ApplyEnv overrides fields from set VTPSYNC_* variables.
func (s *Settings) ApplyEnv() error {
	if err := env.Parse(s); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

// Save writes settings to the default location.
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to path.
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Clear resets all settings.
func (s *Settings) Clear() {
	*s = Settings{}
}

// GetParallelism returns Parallelism, at least 1.
func (s *Settings) GetParallelism() int {
	if s.Parallelism < 1 {
		return 1
	}
	return s.Parallelism
}

// GetAuditLog returns the audit file path (with fallback).
func (s *Settings) GetAuditLog() string {
	if s.AuditLog != "" {
		return s.AuditLog
	}
	return filepath.Join(baseDir(), "audit.log")
}

// GetPersist returns the persist method (with fallback).
func (s *Settings) GetPersist() string {
	if s.Persist != "" {
		return s.Persist
	}
	return PersistSNMP
}

// keys maps the names accepted by Set and Get to their fields.
var keys = map[string]func(s *Settings) *string{
	"inventory":    func(s *Settings) *string { return &s.Inventory },
	"owner":        func(s *Settings) *string { return &s.Owner },
	"snmp_version": func(s *Settings) *string { return &s.SNMPVersion },
	"snmp_user":    func(s *Settings) *string { return &s.SNMPUser },
	"audit_log":    func(s *Settings) *string { return &s.AuditLog },
	"redis":        func(s *Settings) *string { return &s.Redis },
	"persist":      func(s *Settings) *string { return &s.Persist },
	"ssh_user":     func(s *Settings) *string { return &s.SSHUser },
	"known_hosts":  func(s *Settings) *string { return &s.KnownHosts },
}

// Keys lists the settable names, sorted.
func Keys() []string {
	out := append(make([]string, 0, len(keys)+1), "parallelism")
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Set assigns a setting by name.
func (s *Settings) Set(key, value string) error {
	switch key {
	case "parallelism":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("parallelism must be a non-negative integer, got %q", value)
		}
		s.Parallelism = n
		return nil
	case "persist":
		if value != "" && value != PersistSNMP && value != PersistSSH {
			return fmt.Errorf("persist must be %s or %s, got %q", PersistSNMP, PersistSSH, value)
		}
	case "snmp_version":
		if value != "" && value != "2c" && value != "3" {
			return fmt.Errorf("snmp_version must be 2c or 3, got %q", value)
		}
	}
	field, ok := keys[key]
	if !ok {
		return fmt.Errorf("unknown setting: %s", key)
	}
	*field(s) = value
	return nil
}

// Get returns a setting by name.
func (s *Settings) Get(key string) (string, error) {
	if key == "parallelism" {
		if s.Parallelism == 0 {
			return "", nil
		}
		return strconv.Itoa(s.Parallelism), nil
	}
	field, ok := keys[key]
	if !ok {
		return "", fmt.Errorf("unknown setting: %s", key)
	}
	return *field(s), nil
}
