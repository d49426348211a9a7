// Package layer defines the identities of the settings files that make up
// the layered configuration, their precedence and where each one lives.
//
// Higher rank layers override lower rank layers during merging. Memory layers
// are markdown notes rather than JSON and never take part in merging.
package layer

import (
	"fmt"
	"sort"
	"strings"
)

// Identity names one settings layer.
type Identity uint8

const (
	// GlobalShared is the user's shared settings (~/.claude/settings.json).
	GlobalShared Identity = iota
	// GlobalLocal is the user's machine-local settings (~/.claude/settings.local.json).
	GlobalLocal
	// ProjectShared is the checked-in project settings (.claude/settings.json).
	ProjectShared
	// ProjectLocal is the uncommitted project settings (.claude/settings.local.json).
	ProjectLocal
	// EnterpriseManaged is the administrator-managed policy file.
	EnterpriseManaged
	// GlobalMemory is the user's memory notes.
	GlobalMemory
	// ProjectMemory is the project's memory notes.
	ProjectMemory
)

// Scope groups identities by where their base directory comes from.
type Scope uint8

const (
	ScopeEnterprise Scope = iota
	ScopeGlobal
	ScopeProject
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeEnterprise:
		return "enterprise"
	case ScopeGlobal:
		return "global"
	case ScopeProject:
		return "project"
	default:
		return "unknown"
	}
}

// All lists every identity in declaration order.
var All = []Identity{
	GlobalShared,
	GlobalLocal,
	ProjectShared,
	ProjectLocal,
	EnterpriseManaged,
	GlobalMemory,
	ProjectMemory,
}

var names = map[Identity]string{
	GlobalShared:      "global",
	GlobalLocal:       "global-local",
	ProjectShared:     "project",
	ProjectLocal:      "project-local",
	EnterpriseManaged: "enterprise",
	GlobalMemory:      "global-memory",
	ProjectMemory:     "project-memory",
}

// String returns the short layer name used in output and on the command line.
func (id Identity) String() string {
	if name, ok := names[id]; ok {
		return name
	}
	return fmt.Sprintf("Identity(%d)", id)
}

// ParseIdentity is the inverse of String. Matching is case-insensitive.
func ParseIdentity(s string) (Identity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for id, name := range names {
		if name == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown layer %q (want one of %s)", s, strings.Join(Names(), ", "))
}

// Names returns the names of all identities in declaration order.
func Names() []string {
	out := make([]string, len(All))
	for i, id := range All {
		out[i] = id.String()
	}
	return out
}

// Rank returns the merge precedence. Higher ranks win.
func (id Identity) Rank() int {
	switch id {
	case GlobalShared:
		return RankGlobalShared
	case GlobalLocal:
		return RankGlobalLocal
	case ProjectShared:
		return RankProjectShared
	case ProjectLocal:
		return RankProjectLocal
	case EnterpriseManaged:
		return RankEnterpriseManaged
	default:
		return RankNone
	}
}

// Immutable reports whether the layer may never be written by this engine.
func (id Identity) Immutable() bool {
	return id == EnterpriseManaged
}

// IsJSON reports whether the layer is a JSON settings document.
func (id Identity) IsJSON() bool {
	return id != GlobalMemory && id != ProjectMemory
}

// Scope returns where the layer's base directory comes from.
func (id Identity) Scope() Scope {
	switch id {
	case EnterpriseManaged:
		return ScopeEnterprise
	case ProjectShared, ProjectLocal, ProjectMemory:
		return ScopeProject
	default:
		return ScopeGlobal
	}
}

// JSONLayers returns the JSON identities ordered by ascending rank.
func JSONLayers() []Identity {
	var out []Identity
	for _, id := range All {
		if id.IsJSON() {
			out = append(out, id)
		}
	}
	SortByRank(out)
	return out
}

// SortByRank orders ids by ascending rank, keeping the relative order of
// equal ranks.
func SortByRank(ids []Identity) {
	sort.SliceStable(ids, func(i, j int) bool {
		return ids[i].Rank() < ids[j].Rank()
	})
}
