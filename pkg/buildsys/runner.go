package buildsys

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// HelperBinary is the executable that provides the cross-platform mv, rm and mkdir commands. If it's
// empty, commands are passed through to the system.
var HelperBinary string

var defaultExecHandler = interp.DefaultExecHandler(2)

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 && HelperBinary != "" {
		switch args[0] {
		case "mv":
			fallthrough
		case "rm":
			fallthrough
		case "mkdir":
			// always use our cross-platform implementation for these operations to make sure
			// they behave consistently
			args = append([]string{HelperBinary}, args...)
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// Command describes a single shell invocation
type Command struct {
	Dir    string
	Env    map[string]string
	Stdout io.Writer
	Stderr io.Writer
}

func (c Command) runner() (*interp.Runner, error) {
	stdout := c.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	stderr := c.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	runner, err := interp.New(
		interp.Dir(c.Dir),
		interp.Env(expand.ListEnviron(EnvVars(c.Env)...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, stdout, stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize runner")
	}
	return runner, nil
}

// QuoteArgs builds a shell call from a list of arguments. Arguments are quoted where necessary so that
// they reach the program unchanged.
func QuoteArgs(args []string) *syntax.CallExpr {
	cmd := new(syntax.CallExpr)
	cmd.Args = make([]*syntax.Word, len(args))
	for a, arg := range args {
		var wordPart syntax.WordPart

		if arg == "" || strings.ContainsAny(arg, " \t\n$'\"\\*?[]#~=%&|;<>(){}`") {
			node := new(syntax.SglQuoted)
			node.Value = arg
			if strings.Contains(arg, "'") {
				node.Dollar = true
				node.Value = strings.ReplaceAll(strings.ReplaceAll(arg, `\`, `\\`), "'", `\'`)
			}

			wordPart = node
		} else {
			node := new(syntax.Lit)
			node.Value = arg

			wordPart = node
		}

		cmd.Args[a] = new(syntax.Word)
		cmd.Args[a].Parts = []syntax.WordPart{wordPart}
	}

	return cmd
}

// FormatArgs renders a list of arguments as a single shell command line
func FormatArgs(args []string) string {
	buffer := strings.Builder{}
	printer := syntax.NewPrinter(syntax.Minify(true))
	err := printer.Print(&buffer, QuoteArgs(args))
	if err != nil {
		return strings.Join(args, " ")
	}
	return buffer.String()
}

// Run executes a program with the given arguments
func (c Command) Run(ctx context.Context, args ...string) error {
	if len(args) == 0 {
		return eris.New("empty command")
	}

	runner, err := c.runner()
	if err != nil {
		return err
	}

	log(ctx).Debug().
		Bool("command", true).
		Msg(FormatArgs(args))

	err = runner.Run(ctx, &syntax.Stmt{Cmd: QuoteArgs(args)})
	if err != nil {
		return eris.Wrapf(err, "command %s failed", args[0])
	}
	return nil
}

// RunScript parses and executes a shell script
func (c Command) RunScript(ctx context.Context, name, script string) error {
	parsed, err := syntax.NewParser().Parse(strings.NewReader(script), name)
	if err != nil {
		return eris.Wrapf(err, "failed to parse command %s", script)
	}

	runner, err := c.runner()
	if err != nil {
		return err
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}
	for _, stmt := range parsed.Stmts {
		strBuffer.Reset()
		printer.Print(&strBuffer, stmt)
		log(ctx).Debug().
			Bool("command", true).
			Msg(strBuffer.String())

		err = runner.Run(ctx, stmt)
		if err != nil {
			return err
		}

		if runner.Exited() {
			return nil
		}
	}

	return nil
}
