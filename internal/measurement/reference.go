package measurement

import (
	"slices"
	"strings"
)

// DefaultReferenceKeywords in priority order: power analyser channel 1, feed,
// reference, source, standard, powermeter.
var DefaultReferenceKeywords = []string{"pac1", "einspeisung", "ref", "source", "norm", "powermeter"}

// Predicate reports whether a device name qualifies as reference.
type Predicate func(device string) bool

// ReferenceSelector picks the physical reference device of a channel group.
//
// Predicates are evaluated in order. The first predicate that matches any
// device decides, and among devices matching that predicate the first in
// iteration order wins. When nothing matches, the lexicographically smallest
// device is the reference.
type ReferenceSelector struct {
	predicates []Predicate
}

// NewReferenceSelector creates a selector from ordered predicates.
func NewReferenceSelector(predicates ...Predicate) *ReferenceSelector {
	return &ReferenceSelector{predicates: predicates}
}

// NewKeywordSelector creates a selector with one case-insensitive substring
// predicate per keyword. Nil keywords take DefaultReferenceKeywords.
func NewKeywordSelector(keywords []string) *ReferenceSelector {
	if keywords == nil {
		keywords = DefaultReferenceKeywords
	}
	preds := make([]Predicate, 0, len(keywords))
	for _, kw := range keywords {
		kw := kw
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		preds = append(preds, func(device string) bool {
			return strings.Contains(strings.ToLower(device), kw)
		})
	}
	return NewReferenceSelector(preds...)
}

// Select returns the reference among devices. The result is always an
// element of devices.
//
// Returns ErrNoDevices when devices is empty.
func (s *ReferenceSelector) Select(devices []string) (string, error) {
	if len(devices) == 0 {
		return "", ErrNoDevices
	}

	for _, match := range s.predicates {
		for _, d := range devices {
			if match(d) {
				return d, nil
			}
		}
	}

	return slices.Min(devices), nil
}

// SelectGroup selects the reference of a channel group.
func (s *ReferenceSelector) SelectGroup(g ChannelGroup) (string, error) {
	return s.Select(g.Devices)
}
