package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/pretty"
	"golang.org/x/term"

	"github.com/dshills/cfgsync/internal/appconfig"
	"github.com/dshills/cfgsync/internal/settings/codec"
	"github.com/dshills/cfgsync/internal/settings/merge"
	"github.com/dshills/cfgsync/internal/settings/value"
	"github.com/dshills/cfgsync/internal/vfs"
)

var osFS = vfs.NewOSFS()

// useColor reports whether output to w should be colorized.
func (a *app) useColor(w io.Writer) bool {
	switch a.cfg.Color {
	case appconfig.ColorAlways:
		return true
	case appconfig.ColorNever:
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// writeJSON prints v as indented JSON.
func (a *app) writeJSON(w io.Writer, v value.Value) error {
	data, err := codec.Encode(v, nil)
	if err != nil {
		return err
	}
	if a.useColor(w) {
		data = pretty.Color(data, nil)
	}
	_, err = w.Write(data)
	return err
}

// inline renders v as single-line JSON.
func (a *app) inline(w io.Writer, v value.Value) string {
	data, err := codec.Encode(v, nil)
	if err != nil {
		return v.String()
	}
	data = pretty.Ugly(data)
	if a.useColor(w) {
		data = pretty.Color(data, nil)
	}
	return string(data)
}

// provenance describes which layers define a setting.
func provenance(s merge.EffectiveSetting) string {
	if !s.Overridden {
		return s.Source.String()
	}
	return fmt.Sprintf("%s, overridden by %s", s.Source, s.OverriddenBy)
}

// settingValue converts an effective setting to the --json output shape.
func settingValue(s merge.EffectiveSetting) value.Value {
	contributions := make([]value.Value, len(s.Contributions))
	for i, c := range s.Contributions {
		contributions[i] = value.NewObject(map[string]value.Value{
			"layer": value.NewString(c.Layer.String()),
			"value": c.Value,
		})
	}
	members := map[string]value.Value{
		"key":           value.NewString(s.Key),
		"value":         s.Value,
		"source":        value.NewString(s.Source.String()),
		"contributions": value.NewList(contributions...),
	}
	if s.Overridden {
		members["overriddenBy"] = value.NewString(s.OverriddenBy.String())
	}
	return value.NewObject(members)
}

// subtree collects every setting below prefix into one object keyed by the
// remaining path.
func subtree(settings []merge.EffectiveSetting, prefix string) (value.Value, bool) {
	root := value.EmptyObject()
	found := false
	for _, s := range settings {
		rest, ok := strings.CutPrefix(s.Key, prefix+".")
		if !ok {
			continue
		}
		next, err := value.SetPath(root, rest, s.Value)
		if err != nil {
			continue
		}
		root = next
		found = true
	}
	return root, found
}

// parseValue reads a command line value as JSON, falling back to a string.
func parseValue(arg string) value.Value {
	if v, err := codec.Decode([]byte(arg)); err == nil {
		return v
	}
	return value.NewString(arg)
}
