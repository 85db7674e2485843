package deviceinfo

import (
	"sync"

	"github.com/OpenTraceLab/OpenTraceApollo/pkg/idcode"
)

const unknownName = "Unknown device"

// Matcher decides whether a registry entry applies to an IDCODE.
type Matcher func(id idcode.IDCode) bool

// Exact matches any of the given raw IDCODE values.
func Exact(raw ...uint32) Matcher {
	return func(id idcode.IDCode) bool {
		for _, r := range raw {
			if id.Raw == r {
				return true
			}
		}
		return false
	}
}

// Masked matches IDCODEs whose masked bits equal value.
func Masked(value, mask uint32) Matcher {
	return func(id idcode.IDCode) bool {
		return id.Raw&mask == value&mask
	}
}

// Part matches a manufacturer and part number regardless of version.
func Part(manufacturer, part uint16) Matcher {
	return func(id idcode.IDCode) bool {
		return id.ManufacturerCode == manufacturer && id.PartNumber == part
	}
}

// Builder produces the descriptor for a matched IDCODE.
type Builder func(id idcode.IDCode) DeviceInfo

type entry struct {
	match Matcher
	build Builder
}

// Registry is an ordered table of device entries. Lookups walk the entries
// in registration order and the first match wins, so more specific entries
// must be registered before broad family fallbacks.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an entry that returns a copy of info.
func (r *Registry) Register(m Matcher, info DeviceInfo) {
	r.RegisterFunc(m, func(idcode.IDCode) DeviceInfo { return info })
}

// RegisterFunc appends an entry with a custom builder.
func (r *Registry) RegisterFunc(m Matcher, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{match: m, build: b})
}

// Len reports the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Lookup returns device information for a given IDCODE.
// Falls back to generic info if no entry matches.
func (r *Registry) Lookup(rawID uint32) DeviceInfo {
	id := idcode.ParseIDCode(rawID)
	m, _ := idcode.LookupManufacturer(id.ManufacturerCode)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if !e.match(id) {
			continue
		}
		info := e.build(id)
		info.IDCode = id
		info.Manufacturer = m
		return info
	}

	return DeviceInfo{
		IDCode:       id,
		Manufacturer: m,
		Name:         unknownName,
		Description:  "No entry in device database",
	}
}

// Default is the registry populated by the vendor tables in this package.
var Default = NewRegistry()

func register(m Matcher, info DeviceInfo) {
	Default.Register(m, info)
}

// Register adds an entry to the default registry.
func Register(m Matcher, info DeviceInfo) {
	Default.Register(m, info)
}

// Lookup resolves an IDCODE against the default registry.
func Lookup(rawID uint32) DeviceInfo {
	return Default.Lookup(rawID)
}
