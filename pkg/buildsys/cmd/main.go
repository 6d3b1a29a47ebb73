// Package cmd implements the CLI for the buildsys package
package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/TheCurle/BS/pkg/buildsys"
	"github.com/TheCurle/BS/pkg/config"
	"github.com/TheCurle/BS/pkg/plugins/cc"
)

// FindBuildFile searches start and its parents for a build description
func FindBuildFile(start string) (string, error) {
	path, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		for _, name := range buildsys.DefaultBuildFiles {
			candidate := filepath.Join(path, name)
			_, err := os.Stat(candidate)
			if err == nil {
				return candidate, nil
			}
			if !eris.Is(err, os.ErrNotExist) {
				return "", eris.Wrapf(err, "failed to check %s", candidate)
			}
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", eris.New("no build.json file found")
		}

		path = parent
	}
}

// NewRegistry returns a registry with all native plugins and the script plugins in pluginsDir
func NewRegistry(pluginsDir string) *buildsys.Registry {
	registry := buildsys.NewRegistry(pluginsDir)
	cc.Register(registry)
	return registry
}

// BuildRequest describes a single invocation of the build command
type BuildRequest struct {
	Config *config.Config
	// Print writes the resolved description to Output instead of executing the steps
	Print  bool
	Output io.Writer
	OnStep func(index, total int, step *buildsys.Step)
}

// Build loads the build description and runs the pipeline
func Build(ctx context.Context, req BuildRequest) (*buildsys.Pipeline, error) {
	cfg := req.Config

	buildFile := cfg.BuildFile
	if buildFile == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, eris.Wrap(err, "failed to retrieve the current working directory")
		}

		buildFile, err = FindBuildFile(wd)
		if err != nil {
			return nil, err
		}
	}

	buildFile, err := filepath.Abs(buildFile)
	if err != nil {
		return nil, err
	}

	desc, err := buildsys.LoadDescription(ctx, buildFile)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(buildFile)
	rootDir := cfg.RootDir
	if rootDir == "" {
		rootDir = baseDir
	} else if !filepath.IsAbs(rootDir) {
		rootDir = filepath.Join(baseDir, rootDir)
	}

	pluginsDir := cfg.PluginsDir
	if pluginsDir != "" && !filepath.IsAbs(pluginsDir) {
		pluginsDir = filepath.Join(baseDir, pluginsDir)
	}

	pipeline, err := buildsys.Run(ctx, desc, NewRegistry(pluginsDir), buildsys.Options{
		WorkDir:         baseDir,
		RootDir:         rootDir,
		TempDir:         cfg.TempDir,
		GOOS:            cfg.TargetOS,
		StrictMnemonics: cfg.StrictMnemonics,
		AwaitSteps:      cfg.AwaitSteps,
		DryRun:          cfg.DryRun,
		ResolveOnly:     req.Print,
		OnStep:          req.OnStep,
	})
	if err != nil {
		return pipeline, err
	}

	if req.Print {
		out := req.Output
		if out == nil {
			out = os.Stdout
		}

		err = buildsys.WriteDescription(out, pipeline.Desc)
		if err != nil {
			return pipeline, err
		}
	}

	return pipeline, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.Log.JSON {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(NewConsoleWriter(os.Stderr))
	}

	return logger.Level(cfg.LogLevel())
}

var RootCmd = &cobra.Command{
	Use:   "build",
	Short: "Runs the build described by the next build.json",
	Long: `This command parses the first build.json (or build.yml) file it finds in the current directory or
its parents, expands the source sets, binds the language plugins and runs the declared build steps.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}

		var cfg *config.Config
		if configFile != "" {
			cfg, err = config.Load(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("dry") {
			cfg.DryRun, _ = flags.GetBool("dry")
		}
		if flags.Changed("file") {
			cfg.BuildFile, _ = flags.GetString("file")
		}
		if flags.Changed("strict") {
			cfg.StrictMnemonics, _ = flags.GetBool("strict")
		}
		if flags.Changed("no-await") {
			noAwait, _ := flags.GetBool("no-await")
			cfg.AwaitSteps = !noAwait
		}
		if flags.Changed("target-os") {
			cfg.TargetOS, _ = flags.GetString("target-os")
		}
		if verbose, _ := flags.GetBool("verbose"); verbose {
			cfg.Log.Level = "debug"
		}

		printOnly, err := flags.GetBool("print")
		if err != nil {
			return err
		}

		showProgress, err := flags.GetBool("progress")
		if err != nil {
			return err
		}

		logger := newLogger(cfg)
		req := BuildRequest{
			Config: cfg,
			Print:  printOnly,
			Output: os.Stdout,
		}

		var bar *progressbar.ProgressBar
		if showProgress && !printOnly {
			// keep the log quiet so it doesn't tear the progress bar apart
			logger = logger.Level(zerolog.WarnLevel)
			req.OnStep = func(index, total int, step *buildsys.Step) {
				if bar == nil {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionShowCount(),
					)
				}

				bar.Describe(step.Name)
				if index > 0 {
					_ = bar.Add(1)
				}
			}
		}

		ctx := buildsys.WithLogger(context.Background(), &logger)

		_, err = Build(ctx, req)
		if bar != nil {
			_ = bar.Finish()
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("Build failed")
		}

		return nil
	},
}

func init() {
	RootCmd.Flags().StringP("config", "c", "", "configuration file (default: bs.toml)")
	RootCmd.Flags().StringP("file", "f", "", "build description to use instead of searching for build.json")
	RootCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	RootCmd.Flags().BoolP("print", "p", false, "print the resolved build description instead of running the steps")
	RootCmd.Flags().Bool("strict", false, "fail on unknown $mnemonics instead of dropping the argument")
	RootCmd.Flags().Bool("no-await", false, "don't wait for a step's background work before starting the next step")
	RootCmd.Flags().String("target-os", "", "target platform for the executable name (default: host platform)")
	RootCmd.Flags().BoolP("progress", "P", false, "show a progress bar instead of the log")
	RootCmd.Flags().BoolP("verbose", "v", false, "enable debug output")
}
