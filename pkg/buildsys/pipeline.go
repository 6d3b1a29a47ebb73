package buildsys

import (
	"context"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
)

// Options configures a complete run
type Options struct {
	// WorkDir is the directory the build runs in; the temporary directory is created below it
	WorkDir string
	// RootDir replaces $root in source specifications
	RootDir string
	// TempDir is the name of the temporary build directory relative to WorkDir
	TempDir string
	// GOOS is the target platform, defaults to runtime.GOOS
	GOOS            string
	StrictMnemonics bool
	AwaitSteps      bool
	DryRun          bool
	// ResolveOnly stops the run once all steps have been resolved
	ResolveOnly bool
	OnStep      func(index, total int, step *Step)
}

func (o *Options) normalize() error {
	if o.WorkDir == "" {
		o.WorkDir = "."
	}

	workDir, err := filepath.Abs(o.WorkDir)
	if err != nil {
		return eris.Wrap(err, "failed to resolve the working directory")
	}
	o.WorkDir = workDir

	if o.RootDir == "" {
		o.RootDir = o.WorkDir
	}

	o.RootDir, err = filepath.Abs(o.RootDir)
	if err != nil {
		return eris.Wrap(err, "failed to resolve the root directory")
	}

	if o.TempDir == "" {
		o.TempDir = DefaultTempDir
	}

	if o.GOOS == "" {
		o.GOOS = runtime.GOOS
	}

	return nil
}

// Pipeline holds the state of a single run. Each stage fills in the values the next stage depends on.
type Pipeline struct {
	Desc         *Description
	Options      Options
	Extensions   *ExtensionSet
	Bindings     *Bindings
	Substitution *Substitution
}

// NewPipeline prepares a run of desc
func NewPipeline(desc *Description, opts Options) (*Pipeline, error) {
	err := opts.normalize()
	if err != nil {
		return nil, err
	}

	return &Pipeline{Desc: desc, Options: opts}, nil
}

// PluginEnv returns the environment handed to plugins
func (p *Pipeline) PluginEnv() PluginEnv {
	return PluginEnv{
		WorkDir: p.Options.WorkDir,
		RootDir: p.Options.RootDir,
		TempDir: p.Options.TempDir,
		GOOS:    p.Options.GOOS,
		DryRun:  p.Options.DryRun,
	}
}

// ExpandSources runs the source set expansion
func (p *Pipeline) ExpandSources(ctx context.Context) error {
	exts, err := ExpandSources(ctx, p.Desc, p.Options.RootDir)
	if err != nil {
		return err
	}

	p.Extensions = exts
	return nil
}

// Bind binds and preprocesses the plugins for the expanded sources
func (p *Pipeline) Bind(ctx context.Context, registry *Registry) error {
	if p.Extensions == nil {
		return eris.New("sources have to be expanded before plugins can be bound")
	}

	bindings, err := registry.Bind(ctx, p.Extensions, p.Desc, p.PluginEnv())
	if err != nil {
		return err
	}

	p.Bindings = bindings
	return nil
}

// Substitute resolves the mnemonics in all build steps
func (p *Pipeline) Substitute(ctx context.Context) error {
	if p.Bindings == nil {
		return eris.New("plugins have to be bound before steps can be resolved")
	}

	sub, err := Substitute(ctx, p.Desc, SubstitutionEnv{
		WorkDir:         p.Options.WorkDir,
		RootDir:         p.Options.RootDir,
		TempDir:         p.Options.TempDir,
		GOOS:            p.Options.GOOS,
		StrictMnemonics: p.Options.StrictMnemonics,
	})
	if err != nil {
		return err
	}

	p.Substitution = sub
	return nil
}

// Execute runs the resolved steps
func (p *Pipeline) Execute(ctx context.Context) error {
	if p.Substitution == nil {
		return eris.New("steps have to be resolved before they can be executed")
	}

	return Execute(ctx, p.Desc, p.Bindings, ExecuteOptions{
		AwaitSteps: p.Options.AwaitSteps,
		OnStep:     p.Options.OnStep,
	})
}

// Run performs all stages in order: source expansion, plugin binding, step resolution and execution.
// Errors are returned unwrapped so callers can inspect them with errors.As.
func Run(ctx context.Context, desc *Description, registry *Registry, opts Options) (*Pipeline, error) {
	p, err := NewPipeline(desc, opts)
	if err != nil {
		return nil, err
	}

	ctx, _ = WithRunID(ctx)

	err = p.ExpandSources(ctx)
	if err != nil {
		return p, err
	}

	err = p.Bind(ctx, registry)
	if err != nil {
		return p, err
	}

	err = p.Substitute(ctx)
	if err != nil {
		return p, err
	}

	if p.Options.ResolveOnly {
		return p, nil
	}

	return p, p.Execute(ctx)
}
