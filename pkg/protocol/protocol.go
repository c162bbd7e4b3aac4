// Package protocol selects pre-authored dispensing protocol files by
// dispense parameters.
package protocol

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Volume is a dispense volume in millilitres.
type Volume float64

// Supported dispense volumes. The protocol files are authored per volume,
// so only these exact values exist.
const (
	Volume45 Volume = 4.5
	Volume90 Volume = 9.0
)

const (
	// MinRacks and MaxRacks bound the rack count the deck can hold.
	MinRacks = 1
	MaxRacks = 4
)

// Volumes returns the supported volumes in ascending order.
func Volumes() []Volume {
	return []Volume{Volume45, Volume90}
}

func (v Volume) String() string {
	return fmt.Sprintf("%.1f ml", float64(v))
}

// Valid reports whether a protocol is authored for this volume.
func (v Volume) Valid() bool {
	return v == Volume45 || v == Volume90
}

// Params selects a protocol: how much to dispense and into how many racks.
type Params struct {
	Volume Volume
	Racks  int
}

// Validate checks that a protocol is authored for these parameters.
func (p Params) Validate() error {
	if !p.Volume.Valid() {
		return errors.Errorf("no protocol available for %g ml", float64(p.Volume))
	}
	if p.Racks < MinRacks || p.Racks > MaxRacks {
		return errors.Errorf("no protocol for %d racks", p.Racks)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("%s into %d rack(s)", p.Volume, p.Racks)
}

// Filename returns the canonical protocol file name for these parameters,
// e.g. "dispense_4.5ml_2racks.py".
func (p Params) Filename() string {
	return fmt.Sprintf("dispense_%.1fml_%dracks.py", float64(p.Volume), p.Racks)
}

// Catalog resolves dispense parameters to protocol files in a directory.
type Catalog struct {
	dir string
}

// NewCatalog creates a catalog over the given protocol directory.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the protocol directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Lookup returns the protocol file path for the given parameters. The
// parameters must be valid and the file must exist on disk.
func (c *Catalog) Lookup(p Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	path := filepath.Join(c.dir, p.Filename())
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrapf(err, "protocol not found at %s", path)
	}
	return path, nil
}

// Missing returns the file names of authored protocols that are absent
// from the catalog directory, in Combos order.
func (c *Catalog) Missing() []string {
	var missing []string
	for _, p := range Combos() {
		if _, err := c.Lookup(p); err != nil {
			missing = append(missing, p.Filename())
		}
	}
	return missing
}

// Combos returns every parameter combination a protocol is authored for.
func Combos() []Params {
	var combos []Params
	for _, v := range Volumes() {
		for r := MinRacks; r <= MaxRacks; r++ {
			combos = append(combos, Params{Volume: v, Racks: r})
		}
	}
	return combos
}
