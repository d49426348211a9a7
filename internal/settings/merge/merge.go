// Package merge resolves the layered settings documents into one effective
// view with per-key provenance.
//
// The engine is pure: it holds no state and performs no I/O.
package merge

import (
	"sort"

	"github.com/dshills/cfgsync/internal/settings/layer"
	"github.com/dshills/cfgsync/internal/settings/value"
)

// Source is one layer's decoded content.
type Source interface {
	Identity() layer.Identity
	Root() value.Value
}

// Contribution is the value one layer defines for a key.
type Contribution struct {
	Layer layer.Identity
	Value value.Value
}

// EffectiveSetting is the merged result for one dot path.
type EffectiveSetting struct {
	// Key is the dot path.
	Key string
	// Value is the winning value.
	Value value.Value
	// Source is the lowest-precedence layer defining the key.
	Source layer.Identity
	// OverriddenBy is the highest-precedence layer defining the key. It is
	// only meaningful when Overridden is true.
	OverriddenBy layer.Identity
	// Overridden reports whether more than one layer defines the key.
	Overridden bool
	// Contributions lists every defining layer in ascending precedence.
	Contributions []Contribution
}

// Winner returns the layer whose value decides the key.
func (s EffectiveSetting) Winner() layer.Identity {
	if s.Overridden {
		return s.OverriddenBy
	}
	return s.Source
}

// Flatten merges sources into effective settings sorted by key.
//
// Objects are never leaves: only scalars, lists and null are reported. When
// the highest-precedence value is a list, the result is the concatenation of
// every list contribution in ascending precedence. Otherwise the
// highest-precedence value wins. Non-JSON layers are ignored.
func Flatten(sources []Source) []EffectiveSetting {
	ordered := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src != nil && src.Identity().IsJSON() {
			ordered = append(ordered, src)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Identity().Rank() < ordered[j].Identity().Rank()
	})

	groups := make(map[string][]Contribution)
	for _, src := range ordered {
		leaves := make(map[string]leaf)
		flattenValue(src.Root(), "", 0, leaves)
		for key, l := range leaves {
			groups[key] = append(groups[key], Contribution{Layer: src.Identity(), Value: l.value})
		}
	}

	out := make([]EffectiveSetting, 0, len(groups))
	for key, contributions := range groups {
		out = append(out, resolve(key, contributions))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// leaf is a flattened value with the number of object levels it was found at.
type leaf struct {
	value value.Value
	depth int
}

// flattenValue collects the non-object leaves of v under dot-joined keys.
//
// A member name containing a dot can produce the same key as a nested path,
// as with {"a.b": 1, "a": {"b": 2}}. The more deeply nested value wins; on
// equal depth the first key in sorted member order wins.
func flattenValue(v value.Value, prefix string, depth int, result map[string]leaf) {
	for _, key := range v.Keys() {
		member, _ := v.Member(key)
		fullKey := value.JoinPath(prefix, key)
		if member.IsObject() {
			flattenValue(member, fullKey, depth+1, result)
			continue
		}
		if prev, ok := result[fullKey]; ok && prev.depth >= depth+1 {
			continue
		}
		result[fullKey] = leaf{value: member, depth: depth + 1}
	}
}

func resolve(key string, contributions []Contribution) EffectiveSetting {
	first := contributions[0]
	last := contributions[len(contributions)-1]

	s := EffectiveSetting{
		Key:           key,
		Value:         last.Value,
		Source:        first.Layer,
		Contributions: contributions,
	}
	if len(contributions) > 1 && first.Layer != last.Layer {
		s.Overridden = true
		s.OverriddenBy = last.Layer
	}

	if last.Value.IsList() && len(contributions) > 1 {
		var items []value.Value
		for _, c := range contributions {
			if list, ok := c.Value.List(); ok {
				items = append(items, list...)
			}
		}
		s.Value = value.NewList(items...)
	}
	return s
}

// Lookup finds the setting for key in a Flatten result.
func Lookup(settings []EffectiveSetting, key string) (EffectiveSetting, bool) {
	i := sort.Search(len(settings), func(i int) bool { return settings[i].Key >= key })
	if i < len(settings) && settings[i].Key == key {
		return settings[i], true
	}
	return EffectiveSetting{}, false
}
