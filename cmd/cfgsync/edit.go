package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/cfgsync/internal/settings"
	"github.com/dshills/cfgsync/internal/settings/codec"
	"github.com/dshills/cfgsync/internal/settings/layer"
	"github.com/dshills/cfgsync/internal/settings/value"
	"github.com/dshills/cfgsync/internal/vfs"
)

func newSetCommand(a *app) *cobra.Command {
	var layerName string
	var raw bool
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Write a setting to a layer",
		Long: `Write a setting to a layer. VALUE is parsed as JSON; anything that is
not valid JSON is stored as a string.

With --raw the file text is patched in place and keeps its own
indentation; otherwise the file is re-rendered with two-space indentation
while keeping its key order.`,
		Example: `  cfgsync set model '"claude-opus"' --layer project
  cfgsync set permissions.allow '["Read(*)"]' --layer project-local
  cfgsync set cleanupPeriodDays 30 --raw`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.targetLayer(layerName)
			if err != nil {
				return err
			}
			m, err := a.openManager(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			key, v := args[0], parseValue(args[1])
			if raw {
				if err := patchRaw(m, key, args[1], target); err != nil {
					return err
				}
				if err := m.Load(cmd.Context()); err != nil {
					return err
				}
			} else if err := m.UpdateSetting(cmd.Context(), key, v, target); err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "set %s in %s\n", key, target)
			if s, ok := m.Get(key); ok && s.Winner() != target {
				fmt.Fprintf(a.stderr, "note: %s is still decided by the %s layer\n", key, s.Winner())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&layerName, "layer", "l", "", "target layer (default project, or global without a project)")
	cmd.Flags().BoolVar(&raw, "raw", false, "patch the file text in place")
	return cmd
}

// patchRaw edits the target file with sjson so that the surrounding text is
// left untouched.
func patchRaw(m *settings.Manager, key, arg string, target layer.Identity) error {
	path, err := sjsonPath(key)
	if err != nil {
		return err
	}
	doc, ok := m.Document(target)
	if !ok {
		return fmt.Errorf("%s: %w", target, settings.ErrLayerNotLoaded)
	}
	if doc.ReadOnly() {
		return fmt.Errorf("%s: %w", target, settings.ErrReadOnly)
	}

	data, err := osFS.ReadFile(doc.Path())
	if errors.Is(err, fs.ErrNotExist) {
		data = []byte("{}\n")
	} else if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%s: %w", doc.Path(), settings.ErrInvalidDocument)
	}

	literal := []byte(arg)
	if !gjson.Valid(arg) {
		if literal, err = codec.Encode(parseValue(arg), nil); err != nil {
			return err
		}
		literal = bytes.TrimSpace(literal)
	}
	out, err := sjson.SetRawBytes(data, path, literal)
	if err != nil {
		return fmt.Errorf("patching %s: %w", key, err)
	}
	return osFS.WriteFile(doc.Path(), out, vfs.DefaultFileMode)
}

var sjsonEscaper = strings.NewReplacer(`\`, `\\`, `!`, `\!`)

// sjsonPath turns a dot path into an sjson path that names object members
// only. Every segment is forced to be a key with a leading colon, so "env.0"
// sets member "0" of env instead of an array element.
func sjsonPath(key string) (string, error) {
	parts, err := value.SplitPath(key)
	if err != nil {
		return "", fmt.Errorf("%q: %w", key, err)
	}
	for i, part := range parts {
		if strings.ContainsAny(part, "|#@*?") {
			return "", fmt.Errorf("key %q cannot be patched in place, set it without --raw", key)
		}
		parts[i] = ":" + sjsonEscaper.Replace(part)
	}
	return strings.Join(parts, "."), nil
}

func newUnsetCommand(a *app) *cobra.Command {
	var layerName string
	cmd := &cobra.Command{
		Use:   "unset KEY",
		Short: "Remove a setting from a layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.targetLayer(layerName)
			if err != nil {
				return err
			}
			m, err := a.openManager(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			removed, err := m.DeleteSetting(cmd.Context(), args[0], target)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%s is not set in the %s layer", args[0], target)
			}
			fmt.Fprintf(a.stdout, "removed %s from %s\n", args[0], target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&layerName, "layer", "l", "", "target layer (default project, or global without a project)")
	return cmd
}

func newMoveCommand(a *app) *cobra.Command {
	var fromName, toName string
	cmd := &cobra.Command{
		Use:     "move KEY --from LAYER --to LAYER",
		Short:   "Move a setting between layers",
		Example: `  cfgsync move env.API_URL --from project --to project-local`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := layer.ParseIdentity(fromName)
			if err != nil {
				return err
			}
			to, err := layer.ParseIdentity(toName)
			if err != nil {
				return err
			}
			m, err := a.openManager(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			backups, err := m.MoveSetting(cmd.Context(), args[0], from, to)
			for _, b := range backups {
				fmt.Fprintf(a.stderr, "backup: %s\n", b)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "moved %s from %s to %s\n", args[0], from, to)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromName, "from", "", "source layer")
	cmd.Flags().StringVar(&toName, "to", "", "target layer")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
