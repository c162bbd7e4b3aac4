package dispense

import (
	"encoding/json"
	"os"

	"github.com/melbec/dispensomatic/pkg/ot2"
	"github.com/melbec/dispensomatic/pkg/protocol"
)

const DefaultConfigFile = "dispensomatic.json"

// Config holds the operator's saved dispensing setup
type Config struct {
	RobotAddr   string          `json:"robot_addr"`
	ProtocolDir string          `json:"protocol_dir"`
	Volume      protocol.Volume `json:"volume"`
	Racks       int             `json:"racks"`
}

// DefaultConfig returns a config pointing at the lab robot with the
// protocol directory next to the working directory.
func DefaultConfig() *Config {
	return &Config{
		RobotAddr:   ot2.DefaultAddr,
		ProtocolDir: "protocols",
		Volume:      protocol.Volume45,
		Racks:       1,
	}
}

// Params returns the protocol selection parameters from the config.
func (c *Config) Params() protocol.Params {
	return protocol.Params{Volume: c.Volume, Racks: c.Racks}
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
