package layer

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds the file naming rules for each layer. Relative names are
// joined with the base directory of the layer's scope.
type Paths struct {
	// ProjectDir is the directory inside a project root holding its settings.
	ProjectDir string
	// Shared is the file name of a shared settings document.
	Shared string
	// Local is the file name of a machine-local settings document.
	Local string
	// Memory is the file name of a memory document.
	Memory string
	// Enterprise is the absolute location of the managed settings file.
	Enterprise string
}

// DefaultPaths returns the standard naming rules for the current platform.
func DefaultPaths() Paths {
	return Paths{
		ProjectDir: ".claude",
		Shared:     "settings.json",
		Local:      "settings.local.json",
		Memory:     "CLAUDE.md",
		Enterprise: DefaultEnterprisePath(runtime.GOOS),
	}
}

// DefaultEnterprisePath returns the managed settings location for goos.
func DefaultEnterprisePath(goos string) string {
	switch goos {
	case "darwin":
		return "/Library/Application Support/ClaudeCode/managed-settings.json"
	case "windows":
		return `C:\ProgramData\ClaudeCode\managed-settings.json`
	default:
		return "/etc/claude-code/managed-settings.json"
	}
}

// DefaultGlobalDir returns ~/.claude, or an empty string when the home
// directory cannot be determined.
func DefaultGlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude")
}

// Resolve returns the file location of id. base is the global config
// directory for global layers and the project root for project layers; it is
// ignored for the enterprise layer.
func (p Paths) Resolve(id Identity, base string) string {
	switch id {
	case EnterpriseManaged:
		return p.Enterprise
	case GlobalShared:
		return filepath.Join(base, p.Shared)
	case GlobalLocal:
		return filepath.Join(base, p.Local)
	case GlobalMemory:
		return filepath.Join(base, p.Memory)
	case ProjectShared:
		return filepath.Join(base, p.ProjectDir, p.Shared)
	case ProjectLocal:
		return filepath.Join(base, p.ProjectDir, p.Local)
	case ProjectMemory:
		return filepath.Join(base, p.Memory)
	default:
		return ""
	}
}
