// Package hconfig loads the optional YAML machine profile: a small
// declarative file that supplies default flag values so a target board's
// settings can be checked in once instead of retyped on every invocation.
package hconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile mirrors the CLI's own flags (spec.md §6): anything left unset
// here simply leaves the flag default in place.
type Profile struct {
	Base         string `yaml:"base"` // "rv32" or "rv64"
	Entry        uint64 `yaml:"entry,omitempty"`
	BreakpointPC uint64 `yaml:"breakpoint,omitempty"`
	ResultReg    string `yaml:"result_reg,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty"`
	Interactive  bool   `yaml:"interactive,omitempty"`
}

// Load reads and parses a YAML machine profile. A missing path is not an
// error: callers pass an empty Profile through and run on flag defaults.
func Load(path string) (Profile, error) {
	var p Profile
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read machine profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse machine profile: %w", err)
	}
	return p, nil
}
