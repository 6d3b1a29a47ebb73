package buildsys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ScriptPluginExt is the file extension of script plugins inside the plugins directory
const ScriptPluginExt = ".star"

// Registry knows every available plugin resource: native plugins registered in Go and script plugins
// found in the plugins directory. A script plugin shadows a native plugin with the same key.
type Registry struct {
	factories map[string]PluginFactory
	ScriptDir string
}

// NewRegistry creates an empty registry. scriptDir may be empty to disable script plugins.
func NewRegistry(scriptDir string) *Registry {
	return &Registry{
		factories: make(map[string]PluginFactory),
		ScriptDir: scriptDir,
	}
}

// Register adds a native plugin under the given key
func (r *Registry) Register(key string, factory PluginFactory) {
	if _, exists := r.factories[key]; exists {
		panic(fmt.Sprintf("plugin with key '%s' already registered", key))
	}
	r.factories[key] = factory
}

func (r *Registry) scriptPath(key string) string {
	return filepath.Join(r.ScriptDir, key+ScriptPluginExt)
}

func (r *Registry) hasScript(key string) bool {
	if r.ScriptDir == "" {
		return false
	}

	info, err := os.Stat(r.scriptPath(key))
	return err == nil && info.Mode().IsRegular()
}

// Has reports whether a plugin resource with the given key exists
func (r *Registry) Has(key string) bool {
	if _, ok := r.factories[key]; ok {
		return true
	}
	return r.hasScript(key)
}

// Keys returns the keys of all available plugin resources, sorted
func (r *Registry) Keys() ([]string, error) {
	seen := make(map[string]bool, len(r.factories))
	keys := make([]string, 0, len(r.factories))
	for key := range r.factories {
		seen[key] = true
		keys = append(keys, key)
	}

	if r.ScriptDir != "" {
		entries, err := os.ReadDir(r.ScriptDir)
		if err != nil && !eris.Is(err, os.ErrNotExist) {
			return nil, eris.Wrapf(err, "failed to list plugins in %s", r.ScriptDir)
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ScriptPluginExt) {
				continue
			}

			key := strings.TrimSuffix(name, ScriptPluginExt)
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}

	sort.Strings(keys)
	return keys, nil
}

func (r *Registry) load(ctx context.Context, key string, env PluginEnv) (Plugin, error) {
	if r.hasScript(key) {
		return LoadScriptPlugin(ctx, key, r.scriptPath(key), env)
	}

	factory, ok := r.factories[key]
	if !ok {
		return nil, eris.Errorf("plugin %s does not exist", key)
	}
	return factory(ctx, env)
}

// Bindings maps extensions to the plugins serving them
type Bindings struct {
	byExt   map[string]string
	loaded  map[string]Plugin
	plugins []Plugin
}

// Key returns the effective plugin key bound to ext
func (b *Bindings) Key(ext string) (string, bool) {
	key, ok := b.byExt[ext]
	return key, ok
}

// Plugin returns the plugin bound to ext or nil
func (b *Bindings) Plugin(ext string) Plugin {
	key, ok := b.byExt[ext]
	if !ok {
		return nil
	}
	return b.loaded[key]
}

// Plugins returns every distinct bound plugin in binding order
func (b *Bindings) Plugins() []Plugin {
	return append([]Plugin{}, b.plugins...)
}

// Bind finds a plugin for every extension in exts. A plugin named after the extension is preferred;
// otherwise the first other plugin with a preprocessing hook for the extension is used. Each plugin is
// loaded and preprocessed once, no matter how many extensions it serves.
func (r *Registry) Bind(ctx context.Context, exts *ExtensionSet, desc *Description, env PluginEnv) (*Bindings, error) {
	bindings := &Bindings{
		byExt:  make(map[string]string),
		loaded: make(map[string]Plugin),
	}

	load := func(key string) (Plugin, error) {
		if plugin, ok := bindings.loaded[key]; ok {
			return plugin, nil
		}

		plugin, err := r.load(ctx, key, env)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to load plugin %s", key)
		}

		bindings.loaded[key] = plugin
		return plugin, nil
	}

	var keys []string
	broken := make(map[string]bool)
	for _, ext := range exts.List() {
		if _, bound := bindings.byExt[ext]; bound {
			continue
		}

		var key string
		var plugin Plugin
		var err error

		if r.Has(ext) {
			key = ext
			plugin, err = load(key)
			if err != nil {
				return nil, err
			}
		} else {
			if keys == nil {
				keys, err = r.Keys()
				if err != nil {
					return nil, err
				}
			}

			for _, candidate := range keys {
				if broken[candidate] {
					continue
				}

				candidatePlugin, err := load(candidate)
				if err != nil {
					// another plugin may still provide the hook
					broken[candidate] = true
					log(ctx).Warn().Err(err).Str("plugin", candidate).Msg("Skipping plugin that failed to load")
					continue
				}

				if candidatePlugin.PreprocessesExtension(ext) {
					key = candidate
					plugin = candidatePlugin
					break
				}
			}
		}

		if plugin == nil {
			return nil, &PluginNotFoundError{Extension: ext}
		}

		log(ctx).Debug().
			Str("ext", ext).
			Str("plugin", key).
			Msg("Bound plugin")

		bindings.byExt[ext] = key
		if bindings.isBound(plugin) {
			continue
		}
		bindings.plugins = append(bindings.plugins, plugin)

		if plugin.PreprocessesExtension(ext) {
			log(ctx).Info().
				Str("plugin", key).
				Msgf("Running %s", ExtensionHookName(ext))

			err = plugin.Preprocess(ctx, ext, desc)
			if err != nil {
				return nil, eris.Wrapf(err, "plugin %s failed to preprocess extension %s", key, ext)
			}
		}

		if desc.Target != "" {
			if selector, ok := plugin.(CompilerSelector); ok {
				err = selector.SetCompiler(ctx, desc.Target)
				if err != nil {
					return nil, eris.Wrapf(err, "plugin %s rejected target %s", key, desc.Target)
				}
			}
		}
	}

	return bindings, nil
}

func (b *Bindings) isBound(plugin Plugin) bool {
	for _, item := range b.plugins {
		if item == plugin {
			return true
		}
	}
	return false
}
