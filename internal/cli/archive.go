package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tideworn/logbook/internal/dive"
)

// Archive is a YAML export of one or more devices' dive logs, the format
// produced by desktop log managers. It feeds both the batch command and
// the simulated device behind `import --sim`.
type Archive struct {
	Devices []ArchiveDevice `yaml:"devices"`
}

// ArchiveDevice is one device's section of an archive.
type ArchiveDevice struct {
	ID    string        `yaml:"id"`
	Name  string        `yaml:"name"`
	Dives []ArchiveDive `yaml:"dives"`
}

// ArchiveDive is one dive entry. Fingerprint is lowercase hex.
type ArchiveDive struct {
	Fingerprint  string          `yaml:"fingerprint"`
	Start        time.Time       `yaml:"start"`
	Interval     int             `yaml:"interval,omitempty"`
	MaxDepth     float64         `yaml:"max_depth"`
	AvgDepth     float64         `yaml:"avg_depth,omitempty"`
	MinTemp      float64         `yaml:"min_temp,omitempty"`
	MaxTemp      float64         `yaml:"max_temp,omitempty"`
	Rebreather   bool            `yaml:"rebreather,omitempty"`
	DecoRequired bool            `yaml:"deco_required,omitempty"`
	GasMixes     []ArchiveGasMix `yaml:"gas_mixes,omitempty"`
	Samples      []ArchiveSample `yaml:"samples,omitempty"`

	Site  string `yaml:"site,omitempty"`
	Notes string `yaml:"notes,omitempty"`
	Buddy string `yaml:"buddy,omitempty"`
}

// ArchiveGasMix is a gas by composition.
type ArchiveGasMix struct {
	O2 int `yaml:"o2"`
	He int `yaml:"he,omitempty"`
}

// ArchiveSample is one time-series point.
type ArchiveSample struct {
	Depth float64 `yaml:"depth"`
	Temp  float64 `yaml:"temp,omitempty"`
}

// LoadArchive reads and validates an archive file.
func LoadArchive(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Archive
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(a.Devices) == 0 {
		return nil, fmt.Errorf("%s: archive lists no devices", path)
	}
	for _, d := range a.Devices {
		if d.ID == "" {
			return nil, fmt.Errorf("%s: device with empty id", path)
		}
		for i, dv := range d.Dives {
			if dv.Fingerprint == "" {
				return nil, fmt.Errorf("%s: device %s dive %d: missing fingerprint", path, d.ID, i)
			}
			if _, err := hex.DecodeString(dv.Fingerprint); err != nil {
				return nil, fmt.Errorf("%s: device %s dive %d: fingerprint is not hex: %w", path, d.ID, i, err)
			}
			if dv.Start.IsZero() {
				return nil, fmt.Errorf("%s: device %s dive %d: missing start", path, d.ID, i)
			}
		}
	}
	return &a, nil
}

// Rows flattens the archive into decoded dives in file order.
func (a *Archive) Rows() []*dive.Dive {
	var rows []*dive.Dive
	for _, d := range a.Devices {
		for _, ad := range d.Dives {
			rows = append(rows, ad.toDive(dive.DeviceID(d.ID), d.Name))
		}
	}
	return rows
}

func (ad ArchiveDive) toDive(device dive.DeviceID, deviceName string) *dive.Dive {
	fp, _ := hex.DecodeString(ad.Fingerprint)
	interval := ad.Interval
	if interval <= 0 {
		interval = 10
	}

	d := &dive.Dive{
		Device:       device,
		DeviceName:   deviceName,
		Start:        ad.Start,
		MaxDepth:     ad.MaxDepth,
		AvgDepth:     ad.AvgDepth,
		MinTemp:      ad.MinTemp,
		MaxTemp:      ad.MaxTemp,
		Rebreather:   ad.Rebreather,
		DecoRequired: ad.DecoRequired,
		Fingerprint:  fp,
	}
	for _, m := range ad.GasMixes {
		d.AddGasMix(dive.GasMix{O2: m.O2, He: m.He})
	}
	for i, s := range ad.Samples {
		d.Samples = append(d.Samples, dive.Sample{
			Offset:      i * interval,
			Depth:       s.Depth,
			Temperature: s.Temp,
		})
	}
	d.End = ad.Start.Add(time.Duration(len(ad.Samples)*interval) * time.Second)
	d.BottomTime = d.End.Sub(d.Start)
	if ad.Site != "" {
		d.Meta.Site = &ad.Site
	}
	if ad.Notes != "" {
		d.Meta.Notes = &ad.Notes
	}
	if ad.Buddy != "" {
		d.Meta.Buddy = &ad.Buddy
	}
	return d
}
