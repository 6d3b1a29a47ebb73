package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

type scriptCtx struct {
	ctx    context.Context
	plugin *ScriptPlugin
}

func getCtx(thread *starlark.Thread) *scriptCtx {
	return thread.Local("scriptCtx").(*scriptCtx)
}

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

func starlarkIterable2stringSlice(input starlarkIterable, field string) ([]string, error) {
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []string{}, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, value.GoString())
		default:
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
	}
	return result, nil
}

// starlarkStrings accepts a single string or any iterable of strings
func starlarkStrings(value starlark.Value, field string) ([]string, error) {
	switch value := value.(type) {
	case starlark.String:
		return []string{value.GoString()}, nil
	case starlarkIterable:
		return starlarkIterable2stringSlice(value, field)
	case starlark.NoneType:
		return []string{}, nil
	}

	return nil, eris.Errorf("expected %s to be a string or a list of strings but found %s", field, value.Type())
}

func stringList(items []string) *starlark.List {
	values := make([]starlark.Value, len(items))
	for idx, item := range items {
		values[idx] = starlark.String(item)
	}
	return starlark.NewList(values)
}

func scriptMessage(thread *starlark.Thread, msg string) (context.Context, string) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	return ctx.ctx, ctx.plugin.key + ":" + pos.String() + ": " + msg
}

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	ctx, msg := scriptMessage(thread, message)
	log(ctx).Info().Msg(msg)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	ctx, msg := scriptMessage(thread, message)
	log(ctx).Warn().Msg(msg)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var defaultValue string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key, &defaultValue)
	if err != nil {
		return nil, err
	}

	value, ok := os.LookupEnv(key)
	if !ok {
		value = defaultValue
	}

	return starlark.String(value), nil
}

func resolvePath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, eris.Errorf("%s: unexpected keyword arguments", fn.Name())
	}

	if len(args) < 1 {
		return nil, eris.New("expects at least one argument")
	}

	parts := make([]string, len(args))
	for idx, path := range args {
		switch value := path.(type) {
		case starlark.String:
			parts[idx] = value.GoString()
		default:
			return nil, eris.Errorf("only accepts string arguments but argument %d was a %s", idx, path.Type())
		}
	}

	env := getCtx(thread).plugin.env
	result := filepath.Join(parts...)
	if !filepath.IsAbs(result) {
		result = filepath.Join(env.WorkDir, result)
	}

	return starlark.String(normalizeSeparators(result)), nil
}

func starMkdir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dirPath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dirPath)
	if err != nil {
		return nil, err
	}

	env := getCtx(thread).plugin.env
	if !filepath.IsAbs(dirPath) {
		dirPath = filepath.Join(env.WorkDir, dirPath)
	}

	err = os.MkdirAll(dirPath, 0770)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", dirPath)
	}

	return starlark.String(normalizeSeparators(dirPath)), nil
}

func starExec(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var command starlark.Value
	var capture bool
	showError := true

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "command", &command, "capture?", &capture, "show_error?", &showError)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	env := ctx.plugin.env
	outputBuffer := strings.Builder{}

	cmd := Command{Dir: env.WorkDir}
	if capture {
		cmd.Stdout = &outputBuffer
	}
	if !showError {
		cmd.Stderr = &strings.Builder{}
	}

	switch command := command.(type) {
	case starlark.String:
		if env.DryRun {
			log(ctx.ctx).Info().Bool("command", true).Msg(command.GoString())
			return starlark.True, nil
		}
		err = cmd.RunScript(ctx.ctx, ctx.plugin.key, command.GoString())
	case starlarkIterable:
		var parts []string
		parts, err = starlarkIterable2stringSlice(command, "command")
		if err != nil {
			return nil, err
		}

		if env.DryRun {
			log(ctx.ctx).Info().Bool("command", true).Msg(FormatArgs(parts))
			return starlark.True, nil
		}
		err = cmd.Run(ctx.ctx, parts...)
	default:
		return nil, eris.Errorf("unexpected type %s for command parameter, only strings, tuples and lists are valid", command.Type())
	}

	if err != nil {
		if showError {
			log(ctx.ctx).Error().Err(err).Msg("shell error")
		}
		return starlark.False, nil
	}

	if capture {
		return starlark.String(outputBuffer.String()), nil
	}
	return starlark.True, nil
}

func scriptBuiltins(env PluginEnv) starlark.StringDict {
	return starlark.StringDict{
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"TARGET_OS":    starlark.String(env.GOOS),
		"WORK_DIR":     starlark.String(normalizeSeparators(env.WorkDir)),
		"ROOT_DIR":     starlark.String(normalizeSeparators(env.RootDir)),
		"TEMP_DIR":     starlark.String(env.TempPath()),
		"DRY_RUN":      starlark.Bool(env.DryRun),
		"info":         starlark.NewBuiltin("info", starInfo),
		"warn":         starlark.NewBuiltin("warn", starWarn),
		"error":        starlark.NewBuiltin("error", starError),
		"getenv":       starlark.NewBuiltin("getenv", getenv),
		"resolve_path": starlark.NewBuiltin("resolve_path", resolvePath),
		"mkdir":        starlark.NewBuiltin("mkdir", starMkdir),
		"execute":      starlark.NewBuiltin("execute", starExec),
	}
}
