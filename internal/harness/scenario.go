package harness

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario declares simulated devices and a sequence of import runs.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Devices are the simulated dive computers available to every run.
	Devices []Device `yaml:"devices"`

	// Imports are executed in order against one shared database.
	Imports []ImportStep `yaml:"imports"`

	// Expect holds inline expectations checked after all runs.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Device is one simulated dive computer.
type Device struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	MTU  int    `yaml:"mtu,omitempty"`

	// Corrupt lists dive indexes served with a broken checksum.
	Corrupt []int `yaml:"corrupt,omitempty"`

	Dives []Dive `yaml:"dives"`
}

// Dive is one recorded entry. Fingerprint is lowercase hex.
type Dive struct {
	Fingerprint string    `yaml:"fingerprint"`
	Start       time.Time `yaml:"start"`
	Interval    int       `yaml:"interval,omitempty"`
	MaxDepth    float64   `yaml:"max_depth"`
	Samples     []Sample  `yaml:"samples,omitempty"`
}

// Sample is one time-series point.
type Sample struct {
	Depth float64 `yaml:"depth"`
	Temp  float64 `yaml:"temp,omitempty"`
}

// ImportStep is one import run.
type ImportStep struct {
	// Target names the device to connect to (its declared name or id).
	Target string `yaml:"target"`

	// CancelAfter raises the session's cancellation flag once this many
	// dives have been processed (saved or skipped). Zero never cancels.
	CancelAfter int `yaml:"cancel_after,omitempty"`
}

// Expect declares inline expectations.
type Expect struct {
	// Dives is the final dive count in the database.
	Dives int `yaml:"dives"`

	// Steps holds per-run expectations, matched by position.
	Steps []StepExpect `yaml:"steps,omitempty"`
}

// StepExpect is the expected outcome of one import run.
type StepExpect struct {
	New     int  `yaml:"new"`
	Skipped int  `yaml:"skipped"`
	Failed  bool `yaml:"failed,omitempty"`
}

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// LoadScenarios reads every .yaml scenario under dir, sorted by filename.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario has no name")
	}
	if len(s.Devices) == 0 {
		return fmt.Errorf("scenario %s declares no devices", s.Name)
	}
	if len(s.Imports) == 0 {
		return fmt.Errorf("scenario %s declares no imports", s.Name)
	}
	for _, d := range s.Devices {
		if d.ID == "" {
			return fmt.Errorf("scenario %s: device with empty id", s.Name)
		}
		for i, dv := range d.Dives {
			if dv.Fingerprint == "" {
				return fmt.Errorf("scenario %s: device %s dive %d: missing fingerprint", s.Name, d.ID, i)
			}
			if _, err := hex.DecodeString(dv.Fingerprint); err != nil {
				return fmt.Errorf("scenario %s: device %s dive %d: fingerprint is not hex: %w", s.Name, d.ID, i, err)
			}
			if dv.Start.IsZero() {
				return fmt.Errorf("scenario %s: device %s dive %d: missing start", s.Name, d.ID, i)
			}
		}
		for _, idx := range d.Corrupt {
			if idx < 0 || idx >= len(d.Dives) {
				return fmt.Errorf("scenario %s: device %s: corrupt index %d out of range", s.Name, d.ID, idx)
			}
		}
	}
	return nil
}
