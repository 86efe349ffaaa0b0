package trackers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/amaumene/uploadarr/internal/domain"
)

// Constructor builds one adapter from the shared dependencies.
type Constructor func(Deps) domain.Tracker

var registry = map[string]Constructor{}
var registryNames []string

// Register binds a constructor to its lookup keys, typically the tracker
// name and abbreviation. Called from init; duplicate keys panic.
func Register(ctor Constructor, keys ...string) {
	for i, key := range keys {
		key = strings.ToLower(key)
		if _, dup := registry[key]; dup {
			panic(fmt.Sprintf("trackers: duplicate registration for %q", key))
		}
		registry[key] = ctor
		if i == 0 {
			registryNames = append(registryNames, keys[0])
		}
	}
	sort.Strings(registryNames)
}

// Resolve returns the adapter registered under name, case-insensitively.
func Resolve(name string, deps Deps) (domain.Tracker, error) {
	ctor, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrUnknownTracker)
	}
	return ctor(deps), nil
}

// Names lists the registered trackers by primary name.
func Names() []string {
	out := make([]string, len(registryNames))
	copy(out, registryNames)
	return out
}
