package dispense

import (
	"path/filepath"
	"testing"

	"github.com/melbec/dispensomatic/pkg/protocol"
)

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispensomatic.json")

	cfg := &Config{
		RobotAddr:   "10.1.2.3:31950",
		ProtocolDir: "/srv/protocols",
		Volume:      protocol.Volume90,
		Racks:       3,
	}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom failed: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip mismatch: got %+v, want %+v", loaded, cfg)
	}
}

func TestConfig_Params(t *testing.T) {
	cfg := &Config{Volume: protocol.Volume45, Racks: 2}
	params := cfg.Params()
	if params.Volume != protocol.Volume45 || params.Racks != 2 {
		t.Errorf("Params() = %+v", params)
	}
	if err := params.Validate(); err != nil {
		t.Errorf("Params() should be valid: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Params().Validate(); err != nil {
		t.Errorf("default config must select an authored protocol: %v", err)
	}
	if cfg.RobotAddr == "" {
		t.Error("default config must point at a robot")
	}
}
