// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

// Package config is the daemon's YAML configuration, mirroring
// config.yaml the same way the rest of this master's ecosystem keeps a
// server config and its file on disk in lockstep.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hootrhino/ecatmaster/logx"
	"gopkg.in/yaml.v3"
)

// Config is the root daemon configuration.
type Config struct {
	Master MasterConfig `yaml:"master"`
	Pool   PoolConfig   `yaml:"pool"`
	Log    LogConfig    `yaml:"log"`
}

// MasterConfig names the raw network interface the pump binds to and
// lets an operator override the pseudo source MAC baked into wire.
type MasterConfig struct {
	Interface string `yaml:"interface"`
	MAC       string `yaml:"mac"` // "aa:bb:cc:dd:ee:ff", empty = wire.MasterMAC
	DestMAC   string `yaml:"dest_mac"` // empty = broadcast
	Simulate  bool   `yaml:"simulate"` // use an in-memory socket.Pipe instead of AF_PACKET
}

// PoolConfig fixes the slot pool's capacity. DefaultTimeout is defaulted
// here but not passed to the pool: requests without their own deadline
// use pduloop.DefaultTimeout.
type PoolConfig struct {
	Slots         int           `yaml:"slots"`
	PayloadBytes  int           `yaml:"payload_bytes"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// LogConfig selects the daemon's logging verbosity.
type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error | none
}

// Load reads and validates the YAML file at path, filling in the same
// defaults a freshly zeroed Config would need to run.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Pool.Slots <= 0 {
		c.Pool.Slots = 32
	}
	if c.Pool.PayloadBytes <= 0 {
		c.Pool.PayloadBytes = 256
	}
	if c.Pool.DefaultTimeout <= 0 {
		c.Pool.DefaultTimeout = 30 * time.Millisecond
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	if !c.Master.Simulate && c.Master.Interface == "" {
		return fmt.Errorf("master.interface is required unless master.simulate is true")
	}
	if c.Pool.Slots < 1 || c.Pool.Slots > 256 {
		return fmt.Errorf("pool.slots must be in [1,256], got %d", c.Pool.Slots)
	}
	if _, err := logx.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ParseMAC parses a colon-separated MAC address string, returning the
// zero address for an empty input so callers can treat it as "use the
// default" per field.
func ParseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	s = strings.TrimSpace(s)
	if s == "" {
		return mac, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return mac, fmt.Errorf("config: invalid mac %q", s)
	}
	for i, p := range parts {
		var b int
		if _, err := fmt.Sscanf(p, "%02x", &b); err != nil {
			return mac, fmt.Errorf("config: invalid mac %q: %w", s, err)
		}
		mac[i] = byte(b)
	}
	return mac, nil
}
