package buildsys

import (
	"context"
	"path/filepath"
)

// Plugin is a language plugin. Plugins are keyed by name (usually the primary extension they serve) and
// advertise the extensions and steps they can handle.
type Plugin interface {
	// Name returns the key the plugin was registered under
	Name() string
	// PreprocessesExtension reports whether the plugin has a preprocessing hook for ext
	PreprocessesExtension(ext string) bool
	// Preprocess runs the preprocessing hook for ext. It may modify the build steps of desc.
	Preprocess(ctx context.Context, ext string, desc *Description) error
	// ProvidesStep reports whether the plugin implements a handler for the given step base name
	ProvidesStep(step string) bool
	// RunStep executes the handler for the given step base name with the resolved arguments
	RunStep(ctx context.Context, step string, args []string) error
}

// CompilerSelector is implemented by plugins that accept the description's target as toolchain selection
type CompilerSelector interface {
	SetCompiler(ctx context.Context, target string) error
}

// Awaiter is implemented by plugins that start work in the background. Await blocks until all
// outstanding work has finished and returns the first error it produced.
type Awaiter interface {
	Await(ctx context.Context) error
}

// PluginEnv contains the settings shared with every plugin when it's loaded
type PluginEnv struct {
	WorkDir string
	RootDir string
	TempDir string
	GOOS    string
	DryRun  bool
}

// TempPath returns the absolute path of the temporary build directory
func (e PluginEnv) TempPath() string {
	return normalizeSeparators(filepath.Join(e.WorkDir, e.TempDir))
}

// PluginFactory creates a plugin instance. It is called at most once per run.
type PluginFactory func(ctx context.Context, env PluginEnv) (Plugin, error)
