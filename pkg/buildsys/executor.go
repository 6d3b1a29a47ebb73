package buildsys

import (
	"context"

	"github.com/rotisserie/eris"
)

// ExecuteOptions controls how steps are dispatched
type ExecuteOptions struct {
	// AwaitSteps makes the executor wait for all plugins' background work after every step. Without it,
	// background work is only awaited once all steps have been dispatched.
	AwaitSteps bool
	// OnStep is called before a step is dispatched
	OnStep func(index, total int, step *Step)
}

// awaitPlugins waits for every plugin, even after one of them failed, and returns the first failure
func awaitPlugins(ctx context.Context, plugins []Plugin) error {
	var first error
	for _, plugin := range plugins {
		if awaiter, ok := plugin.(Awaiter); ok {
			err := awaiter.Await(ctx)
			if err != nil && first == nil {
				first = eris.Wrapf(err, "plugin %s failed", plugin.Name())
			}
		}
	}

	return first
}

// abort drains the plugins' background work before err is returned
func abort(ctx context.Context, plugins []Plugin, err error) error {
	awaitErr := awaitPlugins(context.WithoutCancel(ctx), plugins)
	if awaitErr != nil {
		return eris.Wrapf(err, "background work failed as well (%v)", awaitErr)
	}

	return err
}

// Execute runs the build steps in declaration order. Each step is passed to every bound plugin that
// provides a handler for it; steps without any handler are skipped. Background work is always awaited
// before Execute returns, including when a step fails.
func Execute(ctx context.Context, desc *Description, bindings *Bindings, opts ExecuteOptions) error {
	plugins := bindings.Plugins()

	for idx, step := range desc.Steps {
		if err := ctx.Err(); err != nil {
			return abort(ctx, plugins, err)
		}

		if opts.OnStep != nil {
			opts.OnStep(idx, len(desc.Steps), step)
		}

		base := step.BaseName()
		handled := false
		for _, plugin := range plugins {
			if !plugin.ProvidesStep(base) {
				continue
			}

			handled = true
			log(ctx).Info().
				Str("step", step.Name).
				Str("plugin", plugin.Name()).
				Msgf("Running %s", step.HandlerName())

			err := plugin.RunStep(ctx, base, step.Args)
			if err != nil {
				return abort(ctx, plugins, eris.Wrapf(err, "step %s failed in plugin %s", step.Name, plugin.Name()))
			}
		}

		if !handled {
			log(ctx).Debug().
				Str("step", step.Name).
				Msgf("No plugin provides %s", step.HandlerName())
		}

		if opts.AwaitSteps {
			err := awaitPlugins(ctx, plugins)
			if err != nil {
				return eris.Wrapf(err, "step %s failed", step.Name)
			}
		}
	}

	return awaitPlugins(ctx, plugins)
}
