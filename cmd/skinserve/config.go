package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Config is the JSON parameter file (the typical `skin.json`).
//
// Any field left empty/zero falls back to the corresponding flag or
// built-in default.
type Config struct {
	Serial        *SerialConfig `json:"SERIAL,omitempty"`
	Layout        string        `json:"LAYOUT,omitempty"`
	Profile       string        `json:"PROFILE,omitempty"`
	Patches       int           `json:"PATCHES,omitempty"`
	Cells         int           `json:"CELLS,omitempty"`
	Alpha         float64       `json:"ALPHA,omitempty"`
	PressureAlpha float64       `json:"PRESSURE_ALPHA,omitempty"`
	Log           string        `json:"LOG,omitempty"`
	DebugLog      string        `json:"DEBUGLOG,omitempty"`
	Listen        string        `json:"LISTEN,omitempty"`
}

// SerialConfig contains the serial-port connection settings.
type SerialConfig struct {
	Port     string `json:"PORT"`
	Baudrate int    `json:"BAUDRATE"`
}

// loadConfig reads and parses a JSON parameter file.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %s", path)
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %s", path)
	}
	return cfg, nil
}
