package measurement

import (
	"fmt"
	"regexp"
	"strings"
)

// valueMarker identifies current value columns.
const valueMarker = "_I"

// DefaultLevels are the target load levels in percent of rated current.
var DefaultLevels = []int{5, 20, 50, 80, 90, 100, 120}

// DefaultPhases are the phases a sorted file may carry.
var DefaultPhases = []string{"L1", "L2", "L3"}

// groupPattern holds the compiled column patterns of one (level, phase).
type groupPattern struct {
	key    GroupKey
	prefix string
	newer  *regexp.Regexp // {LL}_{phase}_{device}_I
	older  *regexp.Regexp // {LL}_{phase}_I_{device}
}

// ChannelResolver groups value columns by load level, phase and device.
// It is safe for concurrent use.
type ChannelResolver struct {
	patterns []groupPattern
}

// NewChannelResolver precompiles the column patterns for every (level, phase)
// pair. Nil arguments take DefaultLevels and DefaultPhases.
func NewChannelResolver(levels []int, phases []string) *ChannelResolver {
	if len(levels) == 0 {
		levels = DefaultLevels
	}
	if len(phases) == 0 {
		phases = DefaultPhases
	}

	r := &ChannelResolver{patterns: make([]groupPattern, 0, len(levels)*len(phases))}
	for _, level := range levels {
		for _, phase := range phases {
			prefix := fmt.Sprintf("%02d_%s", level, phase)
			quoted := regexp.QuoteMeta(prefix)
			r.patterns = append(r.patterns, groupPattern{
				key:    GroupKey{Level: level, Phase: phase},
				prefix: prefix,
				newer:  regexp.MustCompile(`^` + quoted + `_(.+)_I$`),
				older:  regexp.MustCompile(`^` + quoted + `_I_(.+)$`),
			})
		}
	}
	return r
}

// ChannelMap is the result of resolving one header row. Groups are kept in
// level then phase order as configured on the resolver.
type ChannelMap struct {
	groups []ChannelGroup
}

// Keys returns the (level, phase) keys present, in level then phase order.
func (m ChannelMap) Keys() []GroupKey {
	keys := make([]GroupKey, len(m.groups))
	for i, g := range m.groups {
		keys[i] = GroupKey{Level: g.Level, Phase: g.Phase}
	}
	return keys
}

// Groups returns the channel groups in level then phase order.
func (m ChannelMap) Groups() []ChannelGroup {
	return m.groups
}

// Group returns the channel group of (level, phase).
func (m ChannelMap) Group(level int, phase string) (ChannelGroup, bool) {
	for _, g := range m.groups {
		if g.Level == level && g.Phase == phase {
			return g, true
		}
	}
	return ChannelGroup{}, false
}

// Len returns the number of groups.
func (m ChannelMap) Len() int {
	return len(m.groups)
}

// Resolve groups the value columns of headers.
//
// Both the current naming {LL}_{phase}_{device}_I and the legacy
// {LL}_{phase}_I_{device} are recognised; when a column matches both, the
// current naming wins. A (level, phase) with no matching column is left out.
//
// Returns ErrNoValueColumns when no header contains the value marker.
func (r *ChannelResolver) Resolve(headers []string) (ChannelMap, error) {
	var values []string
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if strings.Contains(h, valueMarker) {
			values = append(values, h)
		}
	}
	if len(values) == 0 {
		return ChannelMap{}, ErrNoValueColumns
	}

	var m ChannelMap
	for _, p := range r.patterns {
		group := ChannelGroup{Level: p.key.Level, Phase: p.key.Phase, Columns: make(map[string]string)}
		for _, col := range values {
			if !strings.HasPrefix(col, p.prefix) {
				continue
			}
			device, ok := matchDevice(p, col)
			if !ok {
				continue
			}
			if _, seen := group.Columns[device]; !seen {
				group.Devices = append(group.Devices, device)
			}
			group.Columns[device] = col
		}
		if len(group.Devices) > 0 {
			m.groups = append(m.groups, group)
		}
	}

	return m, nil
}

func matchDevice(p groupPattern, col string) (string, bool) {
	if sm := p.newer.FindStringSubmatch(col); sm != nil {
		return sm[1], true
	}
	if sm := p.older.FindStringSubmatch(col); sm != nil {
		return sm[1], true
	}
	return "", false
}

// IsPlaceholder reports whether name is one of the generic device names,
// compared case-insensitively.
func IsPlaceholder(name string, placeholders []string) bool {
	for _, p := range placeholders {
		if strings.EqualFold(name, p) {
			return true
		}
	}
	return false
}
