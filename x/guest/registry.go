package guest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownGuest is returned when a name has no registry entry.
var ErrUnknownGuest = errors.New("unknown guest")

// Entry identifies a provable program.
type Entry struct {
	Name    string
	ImageID ImageID
	ELF     []byte
}

// Registry is an ordered, read-only list of guest entries. It is safe for
// concurrent use once constructed.
type Registry struct {
	entries []Entry
	byName  map[string]int
}

// NewRegistry builds a registry preserving the given order. Names must be
// non-empty and unique.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, errors.New("guest entry with empty name")
		}
		if _, dup := r.byName[e.Name]; dup {
			return nil, fmt.Errorf("duplicate guest entry %q", e.Name)
		}
		r.byName[e.Name] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// Entries returns the entries in registry order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.entries) }

// Resolve looks an entry up by name.
func (r *Registry) Resolve(name string) (Entry, error) {
	i, ok := r.byName[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownGuest, name)
	}
	return r.entries[i], nil
}

// Lookup finds the entry with the given image id.
func (r *Registry) Lookup(id ImageID) (Entry, error) {
	for _, e := range r.entries {
		if e.ImageID == id {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: image %s", ErrUnknownGuest, id.Hex())
}

// Names returns entry names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Manifest is the on-disk description of the guest list.
//
//	guests:
//	  - name: FINALIZE_VOTES
//	    image_id: 0x6a1f...
//	    elf: target/riscv-guest/finalize_votes
type Manifest struct {
	Guests []ManifestEntry `yaml:"guests"`
}

// ManifestEntry describes one guest. ELF paths are relative to the manifest.
type ManifestEntry struct {
	Name    string  `yaml:"name"`
	ImageID ImageID `yaml:"image_id"`
	ELF     string  `yaml:"elf"`
}

// LoadManifest reads a YAML manifest and the ELF binaries it references.
func LoadManifest(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guest manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse guest manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	entries := make([]Entry, 0, len(m.Guests))
	for _, g := range m.Guests {
		elfPath := g.ELF
		if elfPath == "" {
			return nil, fmt.Errorf("guest %q: elf path is required", g.Name)
		}
		if !filepath.IsAbs(elfPath) {
			elfPath = filepath.Join(base, elfPath)
		}
		elf, err := os.ReadFile(elfPath)
		if err != nil {
			return nil, fmt.Errorf("guest %q: read elf: %w", g.Name, err)
		}
		entries = append(entries, Entry{Name: g.Name, ImageID: g.ImageID, ELF: elf})
	}

	return NewRegistry(entries...)
}
