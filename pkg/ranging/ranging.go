// Package ranging implements the beacon-observation deduplicator (spec
// Section 4.6): a pure, stateless transform over a batch of observations.
// It has no dependency on the region or presentation engines and is
// consumed only as a side channel for proximity UI.
package ranging

import "sort"

// Proximity is the coarse proximity classification carried alongside an
// observation's signed accuracy estimate.
type Proximity int

const (
	ProximityUnknown Proximity = iota
	ProximityImmediate
	ProximityNear
	ProximityFar
)

// String returns the proximity name.
func (p Proximity) String() string {
	switch p {
	case ProximityImmediate:
		return "immediate"
	case ProximityNear:
		return "near"
	case ProximityFar:
		return "far"
	default:
		return "unknown"
	}
}

// Key is the dedup key identifying a physical beacon: (uuid, major, minor).
type Key struct {
	UUID  string
	Major uint16
	Minor uint16
}

// Observation is a single ranged beacon sighting.
type Observation struct {
	UUID      string
	Major     uint16
	Minor     uint16
	RSSI      int
	Accuracy  float64
	Proximity Proximity
}

func (o Observation) key() Key {
	return Key{UUID: o.UUID, Major: o.Major, Minor: o.Minor}
}

// Dedup reduces a batch of observations to at most one per dedup key,
// preferring the lowest non-negative accuracy; an entry with negative
// accuracy ("unusable") for a key is kept only if no non-negative entry
// exists for that key. The result is sorted by accuracy ascending. Dedup
// is pure and stateless: it holds no state between calls and depends
// only on its input.
func Dedup(batch []Observation) []Observation {
	best := make(map[Key]Observation, len(batch))
	seen := make(map[Key]bool, len(batch))

	for _, obs := range batch {
		k := obs.key()
		current, ok := best[k]
		if !ok {
			best[k] = obs
			seen[k] = obs.Accuracy >= 0
			continue
		}

		currentUsable := seen[k]
		candidateUsable := obs.Accuracy >= 0

		switch {
		case candidateUsable && !currentUsable:
			best[k] = obs
			seen[k] = true
		case candidateUsable && currentUsable:
			if obs.Accuracy < current.Accuracy {
				best[k] = obs
			}
		case !candidateUsable && !currentUsable:
			if obs.Accuracy < current.Accuracy {
				best[k] = obs
			}
		default:
			// candidate unusable, current usable: keep current.
		}
	}

	out := make([]Observation, 0, len(best))
	for _, obs := range best {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Accuracy < out[j].Accuracy })
	return out
}
