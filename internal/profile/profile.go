// Package profile resolves per-model transfer settings for known dive
// computers: negotiated chunk size, delivery mode, and the surface-padding
// depth threshold. Profiles are declared in CUE; a builtin set covers
// common models and a directory of user overrides can extend or replace
// it.
package profile

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/tideworn/logbook/internal/transport"
	"github.com/tideworn/logbook/internal/trim"
)

//go:embed builtin.cue
var builtinCUE string

// Profile is one device model's transfer settings.
type Profile struct {
	Name string

	// Match lists device-name prefixes this profile applies to, compared
	// case-insensitively.
	Match []string

	// MTU overrides the negotiated chunk size; 0 keeps the negotiated
	// value.
	MTU int

	WriteMode     transport.WriteMode
	TrimThreshold float64
}

// Default returns the settings used when no profile matches a device.
func Default() Profile {
	return Profile{
		Name:          "default",
		WriteMode:     transport.WriteWithResponse,
		TrimThreshold: trim.DefaultThreshold,
	}
}

// LoadError reports a failure to read or evaluate profile CUE.
type LoadError struct {
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Registry holds compiled profiles in declaration order; later entries win
// on overlapping matches, so user overrides shadow builtins.
type Registry struct {
	profiles []Profile
}

// Builtin compiles the embedded profile set.
func Builtin() (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(builtinCUE, cue.Filename("builtin.cue"))
	if err := v.Err(); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("compiling builtin profiles: %v", err)}
	}
	r := &Registry{}
	if err := r.add(v); err != nil {
		return nil, err
	}
	return r, nil
}

// Load compiles the builtin set plus every CUE file under dir. A missing
// dir yields just the builtins.
func Load(dir string) (*Registry, error) {
	r, err := Builtin()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return r, nil
	}
	if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
		return r, nil
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return r, nil
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("loading profiles from %s: %v", dir, inst.Err)}
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("building profiles from %s: %v", dir, err)}
	}
	if err := r.add(v); err != nil {
		return nil, err
	}
	return r, nil
}

// Lookup returns the last-declared profile whose Match list has a prefix
// of the device name, or the default profile.
func (r *Registry) Lookup(deviceName string) Profile {
	name := strings.ToLower(strings.TrimSpace(deviceName))
	found := Default()
	for _, p := range r.profiles {
		for _, m := range p.Match {
			if strings.HasPrefix(name, strings.ToLower(m)) {
				found = p
			}
		}
	}
	return found
}

// Profiles returns the registered profiles in declaration order.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Names lists the registered profile names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		names = append(names, p.Name)
	}
	return names
}

func (r *Registry) add(v cue.Value) error {
	profiles := v.LookupPath(cue.ParsePath("profile"))
	if !profiles.Exists() {
		return &LoadError{Message: "no profile field found", Pos: v.Pos()}
	}
	iter, err := profiles.Fields()
	if err != nil {
		return &LoadError{Message: fmt.Sprintf("iterating profiles: %v", err)}
	}
	for iter.Next() {
		p, err := compileProfile(iter.Label(), iter.Value())
		if err != nil {
			return err
		}
		r.profiles = append(r.profiles, p)
	}
	return nil
}

func compileProfile(name string, v cue.Value) (Profile, error) {
	p := Default()
	p.Name = name

	matchVal := v.LookupPath(cue.ParsePath("match"))
	if !matchVal.Exists() {
		return Profile{}, &LoadError{Message: fmt.Sprintf("profile %s: match is required", name), Pos: v.Pos()}
	}
	list, err := matchVal.List()
	if err != nil {
		return Profile{}, &LoadError{Message: fmt.Sprintf("profile %s: match must be a list: %v", name, err), Pos: matchVal.Pos()}
	}
	for list.Next() {
		m, err := list.Value().String()
		if err != nil {
			return Profile{}, &LoadError{Message: fmt.Sprintf("profile %s: match entries must be strings: %v", name, err), Pos: list.Value().Pos()}
		}
		p.Match = append(p.Match, m)
	}
	if len(p.Match) == 0 {
		return Profile{}, &LoadError{Message: fmt.Sprintf("profile %s: match must not be empty", name), Pos: matchVal.Pos()}
	}

	if mtuVal := v.LookupPath(cue.ParsePath("mtu")); mtuVal.Exists() {
		mtu, err := mtuVal.Int64()
		if err != nil || mtu < 0 {
			return Profile{}, &LoadError{Message: fmt.Sprintf("profile %s: mtu must be a non-negative integer", name), Pos: mtuVal.Pos()}
		}
		p.MTU = int(mtu)
	}

	if modeVal := v.LookupPath(cue.ParsePath("writeMode")); modeVal.Exists() {
		mode, err := modeVal.String()
		if err != nil {
			return Profile{}, &LoadError{Message: fmt.Sprintf("profile %s: writeMode must be a string", name), Pos: modeVal.Pos()}
		}
		switch mode {
		case "confirmed":
			p.WriteMode = transport.WriteWithResponse
		case "unconfirmed":
			p.WriteMode = transport.WriteWithoutResponse
		default:
			return Profile{}, &LoadError{
				Message: fmt.Sprintf("profile %s: writeMode must be \"confirmed\" or \"unconfirmed\", got %q", name, mode),
				Pos:     modeVal.Pos(),
			}
		}
	}

	if trimVal := v.LookupPath(cue.ParsePath("trimThreshold")); trimVal.Exists() {
		threshold, err := trimVal.Float64()
		if err != nil || threshold < 0 {
			return Profile{}, &LoadError{Message: fmt.Sprintf("profile %s: trimThreshold must be a non-negative number", name), Pos: trimVal.Pos()}
		}
		p.TrimThreshold = threshold
	}

	return p, nil
}
