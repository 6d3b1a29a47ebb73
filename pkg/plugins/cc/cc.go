// Package cc implements the C toolchain plugin. It compiles .c and assembles .s sources into object files
// below the temporary build directory and links them into the final executable.
package cc

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/TheCurle/BS/pkg/buildsys"
)

// Key is the registry key of the plugin
const Key = "c"

const (
	defaultCompiler  = "gcc"
	defaultLinkFlags = "%.o"
	defaultOutput    = "$name"
	objectExt        = "o"
)

var knownCompilers = map[string]string{
	"gcc":   "gcc",
	"clang": "clang",
	"cc":    "cc",
	"tcc":   "tcc",
	"msvc":  "cl",
	"mingw": "x86_64-w64-mingw32-gcc",
}

// CompileCommand is an entry of compile_commands.json
type CompileCommand struct {
	Directory string   `json:"directory"`
	Arguments []string `json:"arguments"`
	File      string   `json:"file"`
	Output    string   `json:"output"`
}

// Plugin is the C toolchain plugin
type Plugin struct {
	env      buildsys.PluginEnv
	compiler string
	name     string

	lock      sync.Mutex
	pending   *errgroup.Group
	commands  []CompileCommand
	objects   []string
	linkFlags []string
}

var _ buildsys.Plugin = (*Plugin)(nil)
var _ buildsys.CompilerSelector = (*Plugin)(nil)
var _ buildsys.Awaiter = (*Plugin)(nil)

// New creates the plugin. The compiler defaults to $CC or gcc.
func New(ctx context.Context, env buildsys.PluginEnv) (buildsys.Plugin, error) {
	compiler := os.Getenv("CC")
	if compiler == "" {
		compiler = defaultCompiler
	}

	return &Plugin{
		env:      env,
		compiler: compiler,
		pending:  newGroup(),
	}, nil
}

// newGroup returns a group that runs at most one compiler process per CPU
func newGroup() *errgroup.Group {
	group := new(errgroup.Group)
	group.SetLimit(runtime.NumCPU())
	return group
}

// Register adds the plugin to the given registry
func Register(registry *buildsys.Registry) {
	registry.Register(Key, New)
}

func (p *Plugin) Name() string {
	return Key
}

// Compiler returns the compiler executable in use
func (p *Plugin) Compiler() string {
	return p.compiler
}

func (p *Plugin) PreprocessesExtension(ext string) bool {
	switch ext {
	case "c", "h", "s":
		return true
	}
	return false
}

// Preprocess adds the implicit link and output steps if the description doesn't declare them and
// creates the directory for the object files.
func (p *Plugin) Preprocess(ctx context.Context, ext string, desc *buildsys.Description) error {
	p.name = desc.Name

	if !desc.HasStep("link") {
		buildsys.Log(ctx).Info().Msg("Inserting link step")
		desc.SetStep("link", defaultLinkFlags)
	}

	if !desc.HasStep("output") {
		buildsys.Log(ctx).Info().Msg("Inserting output step")
		desc.SetStep("output", defaultOutput)
	}

	if p.env.DryRun {
		return nil
	}

	tempDir := p.env.TempPath()
	buildsys.Log(ctx).Debug().Str("path", tempDir).Msg("Creating temporary dir for object files")

	err := os.MkdirAll(tempDir, 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", tempDir)
	}

	return nil
}

func (p *Plugin) SetCompiler(ctx context.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return eris.New("empty compiler name")
	}

	compiler, ok := knownCompilers[strings.ToLower(target)]
	if !ok {
		compiler = target
	}

	buildsys.Log(ctx).Info().Msgf("Using compiler %s", compiler)
	p.compiler = compiler
	return nil
}

func (p *Plugin) ProvidesStep(step string) bool {
	switch step {
	case "compile", "assemble", "link", "output":
		return true
	}
	return false
}

func (p *Plugin) RunStep(ctx context.Context, step string, args []string) error {
	switch step {
	case "compile", "assemble":
		return p.compile(ctx, args)
	case "link":
		p.link(args)
		return nil
	case "output":
		return p.output(ctx, args)
	}

	return eris.Errorf("unsupported step %s", step)
}

func splitFlags(args []string) (flags, rest []string) {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
		} else {
			rest = append(rest, arg)
		}
	}
	return
}

func (p *Plugin) run(ctx context.Context, args []string) error {
	if p.env.DryRun {
		buildsys.Log(ctx).Info().Bool("command", true).Msg(buildsys.FormatArgs(args))
		return nil
	}

	cmd := buildsys.Command{Dir: p.env.WorkDir}
	return cmd.Run(ctx, args...)
}

// compile starts one compiler process per source, at most one per CPU at a time. Flags apply to every
// source that follows them. The processes run in the background until Await is called.
func (p *Plugin) compile(ctx context.Context, args []string) error {
	flags := []string{}
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
			continue
		}

		if strings.EqualFold(filepath.Ext(arg), ".h") {
			continue
		}

		object, err := buildsys.ObjectPath(p.env.WorkDir, p.env.TempDir, arg, objectExt)
		if err != nil {
			return err
		}

		if !p.env.DryRun {
			err = os.MkdirAll(filepath.Dir(object), 0770)
			if err != nil {
				return eris.Wrapf(err, "failed to create the object directory for %s", arg)
			}
		}

		cmdArgs := append([]string{p.compiler, "-c", arg, "-o", object}, flags...)

		p.lock.Lock()
		p.commands = append(p.commands, CompileCommand{
			Directory: p.env.WorkDir,
			Arguments: cmdArgs,
			File:      arg,
			Output:    object,
		})
		p.lock.Unlock()

		p.pending.Go(func() error {
			return p.run(ctx, cmdArgs)
		})
	}

	return nil
}

func (p *Plugin) link(args []string) {
	flags, objects := splitFlags(args)

	p.lock.Lock()
	defer p.lock.Unlock()

	p.objects = append(p.objects, objects...)
	p.linkFlags = append(p.linkFlags, flags...)
}

// output links all collected object files into the named executable
func (p *Plugin) output(ctx context.Context, args []string) error {
	flags, names := splitFlags(args)

	output := p.name
	if len(names) > 0 {
		output = names[0]
	}
	if output == "" {
		return eris.New("no output name given")
	}

	// objects have to exist before they can be linked
	err := p.Await(ctx)
	if err != nil {
		return err
	}

	p.lock.Lock()
	cmdArgs := append([]string{p.compiler}, p.objects...)
	cmdArgs = append(cmdArgs, p.linkFlags...)
	cmdArgs = append(cmdArgs, flags...)
	cmdArgs = append(cmdArgs, "-o", output)
	p.lock.Unlock()

	buildsys.Log(ctx).Info().Msgf("Linking %s", output)
	return p.run(ctx, cmdArgs)
}

// Await waits for all running compiler processes and updates compile_commands.json
func (p *Plugin) Await(ctx context.Context) error {
	p.lock.Lock()
	pending := p.pending
	p.pending = newGroup()
	p.lock.Unlock()

	err := pending.Wait()
	if err != nil {
		return err
	}

	return p.writeCompileCommands()
}

// CompileCommands returns the compiler invocations issued so far
func (p *Plugin) CompileCommands() []CompileCommand {
	p.lock.Lock()
	defer p.lock.Unlock()

	return append([]CompileCommand{}, p.commands...)
}

func (p *Plugin) writeCompileCommands() error {
	commands := p.CompileCommands()
	if len(commands) == 0 || p.env.DryRun {
		return nil
	}

	data, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return eris.Wrap(err, "failed to encode compile commands")
	}

	dest := filepath.Join(p.env.TempPath(), "compile_commands.json")
	err = ioutil.WriteFile(dest, data, 0660)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", dest)
	}

	return nil
}
