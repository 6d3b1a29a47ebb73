package buildsys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// journal records plugin calls across all fake plugins of a test
type journal struct {
	lock    sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...interface{}) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.lock.Lock()
	defer j.lock.Unlock()
	return append([]string{}, j.entries...)
}

type fakePlugin struct {
	key        string
	exts       []string
	steps      []string
	journal    *journal
	preprocess func(ext string, desc *Description) error
	stepErr    error
}

var _ Plugin = (*fakePlugin)(nil)

func (p *fakePlugin) Name() string {
	return p.key
}

func (p *fakePlugin) PreprocessesExtension(ext string) bool {
	for _, item := range p.exts {
		if item == ext {
			return true
		}
	}
	return false
}

func (p *fakePlugin) Preprocess(ctx context.Context, ext string, desc *Description) error {
	p.journal.add("%s:preprocess:%s", p.key, ext)
	if p.preprocess != nil {
		return p.preprocess(ext, desc)
	}
	return nil
}

func (p *fakePlugin) ProvidesStep(step string) bool {
	for _, item := range p.steps {
		if item == step {
			return true
		}
	}
	return false
}

func (p *fakePlugin) RunStep(ctx context.Context, step string, args []string) error {
	p.journal.add("%s:%s:%s", p.key, step, strings.Join(args, ","))
	return p.stepErr
}

// compilerPlugin additionally accepts a compiler selection
type compilerPlugin struct {
	fakePlugin
	compiler string
}

func (p *compilerPlugin) SetCompiler(ctx context.Context, target string) error {
	p.journal.add("%s:setCompiler:%s", p.key, target)
	p.compiler = target
	return nil
}

// backgroundPlugin pretends to start work in RunStep that only finishes in Await
type backgroundPlugin struct {
	fakePlugin
	running []string
	// failStep fails immediately with stepErr instead of starting work
	failStep string
}

func (p *backgroundPlugin) RunStep(ctx context.Context, step string, args []string) error {
	if step == p.failStep {
		p.journal.add("%s:fail:%s", p.key, step)
		return p.stepErr
	}

	p.journal.add("%s:start:%s", p.key, step)
	p.running = append(p.running, step)
	return nil
}

func (p *backgroundPlugin) Await(ctx context.Context) error {
	for _, step := range p.running {
		p.journal.add("%s:done:%s", p.key, step)
	}
	p.running = nil
	return nil
}

func staticFactory(plugin Plugin) PluginFactory {
	return func(ctx context.Context, env PluginEnv) (Plugin, error) {
		return plugin, nil
	}
}

// writeFiles creates the given files (with empty content) below dir
func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()

	for _, name := range names {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte{}, 0644))
	}
}

func slashed(dir string, names ...string) []string {
	result := make([]string, len(names))
	for idx, name := range names {
		result[idx] = filepath.ToSlash(dir) + "/" + name
	}
	return result
}
