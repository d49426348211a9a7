package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/cfgsync/internal/appconfig"
	"github.com/dshills/cfgsync/internal/settings"
	"github.com/dshills/cfgsync/internal/settings/layer"
)

// app carries what every command needs.
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)

	configPath string
	projectDir string
	globalDir  string
	logLevel   string
	color      string

	cfg appconfig.Config
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cfgsync",
		Short: "Inspect and edit layered JSON settings",
		Long: `cfgsync merges the enterprise, global and project settings files into
one effective view, shows where every value comes from and writes edits
back to the layer you choose.

Layers, lowest precedence first:
  global, global-local, project, project-local, enterprise

Lists are additive across layers; every other value is decided by the
highest layer that defines it. The enterprise layer always wins and is
never written.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", appconfig.DefaultPath(), "options file")
	flags.StringVarP(&a.projectDir, "project", "p", "", "project root (default: current directory if it has .claude/)")
	flags.StringVar(&a.globalDir, "global-dir", "", "global settings directory (default ~/.claude)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.color, "color", "", "colorize output (auto, always, never)")

	root.AddCommand(
		newShowCommand(a),
		newTreeCommand(a),
		newGetCommand(a),
		newSetCommand(a),
		newUnsetCommand(a),
		newMoveCommand(a),
		newValidateCommand(a),
		newWatchCommand(a),
	)
	return root
}

// loadConfig reads the options file and applies flag overrides.
func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg, err := appconfig.LoadFS(osFS, a.configPath, a.lookupEnv)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("global-dir") {
		cfg.GlobalDir = a.globalDir
	}
	if flags.Changed("project") {
		cfg.ProjectDir = a.projectDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("color") {
		cfg.Color = a.color
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = detectProject(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// detectProject returns the working directory when it holds a project
// settings directory.
func detectProject(cfg appconfig.Config) string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := filepath.Join(wd, layer.DefaultPaths().ProjectDir)
	if info, err := osFS.Stat(dir); err == nil && info.IsDir && filepath.Clean(dir) != filepath.Clean(cfg.GlobalDir) {
		return wd
	}
	return ""
}

// openManager creates and loads a settings manager.
func (a *app) openManager(cmd *cobra.Command) (*settings.Manager, error) {
	logger := a.cfg.NewLogger(a.stderr)
	m := settings.New(append(a.cfg.ManagerOptions(logger), settings.WithFS(osFS))...)
	if err := m.Load(cmd.Context()); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// targetLayer parses a --layer flag value, defaulting to the project layer
// when a project is open and the global layer otherwise.
func (a *app) targetLayer(name string) (layer.Identity, error) {
	if name == "" {
		if a.cfg.ProjectDir != "" {
			return layer.ProjectShared, nil
		}
		return layer.GlobalShared, nil
	}
	return layer.ParseIdentity(name)
}
