package buildsys

import (
	"context"
	"fmt"
	"io/ioutil"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

// ScriptPlugin is a plugin implemented as a Starlark script. The script's global functions named
// extension<EXT>, setCompiler and step<Name> form the plugin's capabilities.
type ScriptPlugin struct {
	key     string
	path    string
	env     PluginEnv
	thread  *starlark.Thread
	sctx    *scriptCtx
	globals starlark.StringDict
}

var _ Plugin = (*ScriptPlugin)(nil)
var _ CompilerSelector = (*ScriptPlugin)(nil)

// LoadScriptPlugin executes the script at path and returns the resulting plugin
func LoadScriptPlugin(ctx context.Context, key, path string, env PluginEnv) (*ScriptPlugin, error) {
	script, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read plugin %s", path)
	}

	plugin := &ScriptPlugin{
		key:  key,
		path: path,
		env:  env,
	}
	plugin.sctx = &scriptCtx{ctx: ctx, plugin: plugin}
	plugin.thread = &starlark.Thread{
		Name: key,
		Print: func(thread *starlark.Thread, msg string) {
			log(getCtx(thread).ctx).Info().Str("plugin", key).Msg(msg)
		},
	}
	plugin.thread.SetLocal("scriptCtx", plugin.sctx)

	log(ctx).Debug().Str("path", path).Msgf("Loading script plugin %s", key)

	plugin.globals, err = starlark.ExecFile(plugin.thread, simplifyPath(env.RootDir, path), script, scriptBuiltins(env))
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", path, evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed to execute %s", path)
	}

	return plugin, nil
}

func (p *ScriptPlugin) Name() string {
	return p.key
}

func (p *ScriptPlugin) function(name string) starlark.Callable {
	value, ok := p.globals[name]
	if !ok {
		return nil
	}

	fn, ok := value.(starlark.Callable)
	if !ok {
		return nil
	}
	return fn
}

func (p *ScriptPlugin) call(ctx context.Context, name string, args starlark.Tuple) (starlark.Value, error) {
	fn := p.function(name)
	if fn == nil {
		return nil, eris.Errorf("plugin %s has no function %s", p.key, name)
	}

	p.sctx.ctx = ctx
	result, err := starlark.Call(p.thread, fn, args, nil)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("%s failed in %s:\n%s", name, p.path, evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "%s failed in %s", name, p.path)
	}

	if result == starlark.False {
		return nil, eris.Errorf("%s in %s reported a failure", name, p.path)
	}
	return result, nil
}

func (p *ScriptPlugin) PreprocessesExtension(ext string) bool {
	return p.function(ExtensionHookName(ext)) != nil
}

func (p *ScriptPlugin) Preprocess(ctx context.Context, ext string, desc *Description) error {
	hook := ExtensionHookName(ext)
	fn := p.function(hook)
	if fn == nil {
		return nil
	}

	args := starlark.Tuple{}
	// hooks that don't need the description may omit the parameter
	if sfn, ok := fn.(*starlark.Function); !ok || sfn.NumParams() > 0 || sfn.HasVarargs() {
		args = starlark.Tuple{&starlarkDescription{desc: desc}}
	}

	_, err := p.call(ctx, hook, args)
	return err
}

func (p *ScriptPlugin) SetCompiler(ctx context.Context, target string) error {
	if p.function("setCompiler") == nil {
		return nil
	}

	_, err := p.call(ctx, "setCompiler", starlark.Tuple{starlark.String(target)})
	return err
}

func (p *ScriptPlugin) ProvidesStep(step string) bool {
	return p.function(StepHandlerName(step)) != nil
}

func (p *ScriptPlugin) RunStep(ctx context.Context, step string, args []string) error {
	params := make(starlark.Tuple, len(args))
	for idx, arg := range args {
		params[idx] = starlark.String(arg)
	}

	_, err := p.call(ctx, StepHandlerName(step), params)
	return err
}

// starlarkDescription exposes the build description to script plugins
type starlarkDescription struct {
	desc *Description
}

var _ starlark.HasAttrs = (*starlarkDescription)(nil)

func (d *starlarkDescription) String() string {
	return fmt.Sprintf("<description %s>", d.desc.Name)
}

func (d *starlarkDescription) Type() string {
	return "description"
}

// Freeze doesn't do anything since plugins are supposed to modify the description
func (d *starlarkDescription) Freeze() {}

func (d *starlarkDescription) Truth() starlark.Bool {
	return starlark.True
}

func (d *starlarkDescription) Hash() (uint32, error) {
	return 0, eris.New("description is not a hashable type")
}

var descriptionMethods = map[string]func(d *Description, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error){
	"steps":       descSteps,
	"has_step":    descHasStep,
	"get_step":    descGetStep,
	"set_step":    descSetStep,
	"rename_step": descRenameStep,
	"sources":     descSources,
	"source_sets": descSourceSets,
}

func (d *starlarkDescription) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(d.desc.Name), nil
	case "target":
		return starlark.String(d.desc.Target), nil
	}

	method, ok := descriptionMethods[name]
	if !ok {
		return nil, nil
	}

	return starlark.NewBuiltin(name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return method(fn.Receiver().(*starlarkDescription).desc, fn, args, kwargs)
	}).BindReceiver(d), nil
}

func (d *starlarkDescription) AttrNames() []string {
	names := []string{"name", "target"}
	for name := range descriptionMethods {
		names = append(names, name)
	}
	return names
}

func descSteps(d *Description, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(d.Steps))
	for idx, step := range d.Steps {
		names[idx] = step.Name
	}
	return stringList(names), nil
}

func descHasStep(d *Description, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name)
	if err != nil {
		return nil, err
	}

	return starlark.Bool(d.HasStep(name)), nil
}

func descGetStep(d *Description, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name)
	if err != nil {
		return nil, err
	}

	step := d.Step(name)
	if step == nil {
		return starlark.None, nil
	}
	return stringList(step.Args), nil
}

func descSetStep(d *Description, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var rawArgs starlark.Value = starlark.None
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name, &rawArgs)
	if err != nil {
		return nil, err
	}

	stepArgs, err := starlarkStrings(rawArgs, name)
	if err != nil {
		return nil, err
	}

	d.SetStep(name, stepArgs...)
	return starlark.None, nil
}

func descRenameStep(d *Description, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var from, to string
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &from, &to)
	if err != nil {
		return nil, err
	}

	return starlark.Bool(d.RenameStep(from, to)), nil
}

func descSources(d *Description, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name)
	if err != nil {
		return nil, err
	}

	set := d.SourceSet(name)
	if set == nil {
		return starlark.None, nil
	}
	return stringList(set.Files), nil
}

func descSourceSets(d *Description, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(d.Sources))
	for idx, set := range d.Sources {
		names[idx] = set.Name
	}
	return stringList(names), nil
}
