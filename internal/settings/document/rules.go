package document

import (
	"fmt"
	"sort"

	"github.com/dshills/cfgsync/internal/settings/value"
)

// Rule checks the shape of one well-known setting. Rules only fire when the
// setting is present.
type Rule struct {
	// Path is the dot path of the checked setting.
	Path string
	// Check returns a message describing the problem, or "" when v is fine.
	Check func(v value.Value) string
}

// KindRule requires the setting to be of kind k.
func KindRule(path string, k value.Kind) Rule {
	return Rule{Path: path, Check: func(v value.Value) string {
		if v.Kind() != k {
			return fmt.Sprintf("must be %s, got %s", kindName(k), v.Kind())
		}
		return ""
	}}
}

// ListRule requires a list whose items are all of kind elem.
func ListRule(path string, elem value.Kind) Rule {
	return Rule{Path: path, Check: func(v value.Value) string {
		items, ok := v.List()
		if !ok {
			return fmt.Sprintf("must be an array, got %s", v.Kind())
		}
		for i, item := range items {
			if item.Kind() != elem {
				return fmt.Sprintf("item %d must be %s, got %s", i, kindName(elem), item.Kind())
			}
		}
		return ""
	}}
}

// MapRule requires an object whose members are all of kind elem.
func MapRule(path string, elem value.Kind) Rule {
	return Rule{Path: path, Check: func(v value.Value) string {
		members, ok := v.Object()
		if !ok {
			return fmt.Sprintf("must be an object, got %s", v.Kind())
		}
		keys := make([]string, 0, len(members))
		for k := range members {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if members[k].Kind() != elem {
				return fmt.Sprintf("member %q must be %s, got %s", k, kindName(elem), members[k].Kind())
			}
		}
		return ""
	}}
}

// NonNegativeIntRule requires an integer >= 0.
func NonNegativeIntRule(path string) Rule {
	return Rule{Path: path, Check: func(v value.Value) string {
		i, ok := v.Int()
		if !ok {
			return fmt.Sprintf("must be an integer, got %s", v.Kind())
		}
		if i < 0 {
			return fmt.Sprintf("must not be negative, got %d", i)
		}
		return ""
	}}
}

// DefaultRules returns the shape rules for the well-known settings keys.
func DefaultRules() []Rule {
	return []Rule{
		KindRule("hooks", value.Object),
		KindRule("permissions", value.Object),
		ListRule("permissions.allow", value.String),
		ListRule("permissions.deny", value.String),
		ListRule("permissions.ask", value.String),
		ListRule("permissions.additionalDirectories", value.String),
		MapRule("env", value.String),
		KindRule("model", value.String),
		KindRule("includeCoAuthoredBy", value.Bool),
		NonNegativeIntRule("cleanupPeriodDays"),
	}
}

// Validate runs rules against root and returns one diagnostic per failure.
func Validate(root value.Value, rules []Rule) []Diagnostic {
	var diags []Diagnostic
	for _, r := range rules {
		v, ok := value.Lookup(root, r.Path)
		if !ok {
			continue
		}
		if msg := r.Check(v); msg != "" {
			diags = append(diags, Diagnostic{Kind: KindSchema, Path: r.Path, Message: msg})
		}
	}
	return diags
}

func kindName(k value.Kind) string {
	switch k {
	case value.Object:
		return "an object"
	case value.List:
		return "an array"
	case value.Int:
		return "an integer"
	case value.Bool:
		return "a boolean"
	default:
		return "a " + k.String()
	}
}
