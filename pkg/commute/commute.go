// Package commute defines the tracked values of the commute feature:
// the user's saved addresses and their per-mode travel thresholds.
package commute

import (
	"fmt"

	"github.com/uprent-dev/commutesync/pkg/syncstore"
)

// Namespace prefixes every bridge topic of the commute keys.
const Namespace = "UPRENT_"

// Durations holds one duration in minutes per travel mode.
type Durations struct {
	Walking int `json:"walking"`
	Biking  int `json:"biking"`
	Transit int `json:"transit"`
	Driving int `json:"driving"`
}

// Mode names, in display order.
const (
	ModeWalking = "walking"
	ModeBiking  = "biking"
	ModeTransit = "transit"
	ModeDriving = "driving"
)

// Modes lists every travel mode.
var Modes = []string{ModeWalking, ModeBiking, ModeTransit, ModeDriving}

// Get returns the duration for mode.
func (d Durations) Get(mode string) (int, bool) {
	switch mode {
	case ModeWalking:
		return d.Walking, true
	case ModeBiking:
		return d.Biking, true
	case ModeTransit:
		return d.Transit, true
	case ModeDriving:
		return d.Driving, true
	}
	return 0, false
}

// With returns a copy of d with mode set to minutes.
func (d Durations) With(mode string, minutes int) (Durations, error) {
	switch mode {
	case ModeWalking:
		d.Walking = minutes
	case ModeBiking:
		d.Biking = minutes
	case ModeTransit:
		d.Transit = minutes
	case ModeDriving:
		d.Driving = minutes
	default:
		return d, fmt.Errorf("unknown travel mode %q", mode)
	}
	return d, nil
}

// Within reports, per mode, whether d stays inside the limits.
func (d Durations) Within(limits Durations) map[string]bool {
	out := make(map[string]bool, len(Modes))
	for _, mode := range Modes {
		v, _ := d.Get(mode)
		limit, _ := limits.Get(mode)
		out[mode] = v <= limit
	}
	return out
}

// DefaultThresholds are the limits used before the user picks any.
var DefaultThresholds = Durations{Walking: 50, Biking: 40, Transit: 60, Driving: 45}

// Addresses is the list of saved commute destinations.
var Addresses = syncstore.Key("uprent-commute-addresses", "ADDRESSES", []string{}).
	WithNamespace(Namespace)

// Thresholds is the maximum acceptable duration per travel mode.
var Thresholds = syncstore.Key("uprent-commute-thresholds", "THRESHOLDS", DefaultThresholds).
	WithNamespace(Namespace)

// Descriptors returns the descriptors of every commute key, for the
// storage bridge. ns replaces the default topic namespace when non-empty.
func Descriptors(ns string) []syncstore.Descriptor {
	addrs, thresholds := Addresses, Thresholds
	if ns != "" {
		addrs = addrs.WithNamespace(ns)
		thresholds = thresholds.WithNamespace(ns)
	}
	return []syncstore.Descriptor{addrs.Descriptor(), thresholds.Descriptor()}
}

// AddAddress returns addrs with addr appended unless already present.
func AddAddress(addrs []string, addr string) []string {
	for _, a := range addrs {
		if a == addr {
			return addrs
		}
	}
	out := make([]string, 0, len(addrs)+1)
	out = append(out, addrs...)
	return append(out, addr)
}

// RemoveAddress returns addrs without addr.
func RemoveAddress(addrs []string, addr string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a != addr {
			out = append(out, a)
		}
	}
	return out
}
