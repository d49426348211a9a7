package codec

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// KeyOrder maps a container path to the member names of that object in the
// order they appear in the source bytes.
//
// Paths use "" for the root, "parent.key" for object members and
// "parent[i]" for array elements. Backslash, dot and open bracket inside a
// member name are escaped with a backslash, so a literal "a.b" member is
// recorded under `a\.b` and never collides with "b" nested in "a".
type KeyOrder map[string][]string

// ScanKeyOrder walks original in document order and records the key order of
// every object it contains. Invalid input yields an empty KeyOrder, which
// makes the encoder fall back to sorted keys.
func ScanKeyOrder(original []byte) KeyOrder {
	order := make(KeyOrder)
	if len(original) == 0 || !gjson.ValidBytes(original) {
		return order
	}
	scan(gjson.ParseBytes(original), "", order)
	return order
}

func scan(node gjson.Result, path string, order KeyOrder) {
	switch {
	case node.IsObject():
		seen := make(map[string]bool)
		keys := []string{}
		node.ForEach(func(key, member gjson.Result) bool {
			name := key.String()
			if !seen[name] {
				seen[name] = true
				keys = append(keys, name)
			}
			scan(member, childPath(path, name), order)
			return true
		})
		order[path] = keys
	case node.IsArray():
		i := 0
		node.ForEach(func(_, item gjson.Result) bool {
			scan(item, indexPath(path, i), order)
			i++
			return true
		})
	}
}

var segmentEscaper = strings.NewReplacer(`\`, `\\`, `.`, `\.`, `[`, `\[`)

func childPath(parent, key string) string {
	key = segmentEscaper.Replace(key)
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func indexPath(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}
