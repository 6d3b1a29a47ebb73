package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Config describes all configuration options
type Config struct {
	BuildFile       string `toml:"build_file" env:"BUILD_FILE" default:"" usage:"Build description to use (default: first build.json, build.yml or build.yaml found)"`
	PluginsDir      string `toml:"plugins_dir" env:"PLUGINS_DIR" default:"plugins" usage:"Directory containing script plugins, relative to the build description"`
	RootDir         string `toml:"root_dir" env:"ROOT_DIR" default:"" usage:"Directory that replaces $root (default: the build description's directory)"`
	TempDir         string `toml:"temp_dir" env:"TEMP_DIR" default:"bsTemp" usage:"Temporary build directory, relative to the working directory"`
	TargetOS        string `toml:"target_os" env:"TARGET_OS" default:"" usage:"Target platform for the executable name (default: host platform)"`
	StrictMnemonics bool   `toml:"strict_mnemonics" env:"STRICT_MNEMONICS" default:"false" usage:"Fail on unknown $mnemonics instead of dropping the argument"`
	AwaitSteps      bool   `toml:"await_steps" env:"AWAIT_STEPS" default:"true" usage:"Wait for each step's background work before starting the next step"`
	DryRun          bool   `toml:"dry_run" env:"DRY_RUN" default:"false" usage:"Only print the commands, don't execute anything"`
	Log struct {
		Level string `toml:"level" env:"LEVEL" default:"info"`
		JSON  bool   `toml:"json" env:"JSON" default:"false" usage:"Output JSONND instead of pretty console messages"`
	} `toml:"log" env:"LOG"`
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object. Values are read
// from bs.toml (if present) and BS_* environment variables; flags are handled by the CLI.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{"bs.toml"}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "BS",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration
func Load(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	err := loader.Load()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load configuration")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if _, ok := logLevels[strings.ToLower(cfg.Log.Level)]; !ok {
		return eris.Errorf("invalid log level %s", cfg.Log.Level)
	}

	if cfg.TempDir == "" {
		return eris.New("temp_dir must not be empty")
	}

	if filepath.IsAbs(cfg.TempDir) || strings.HasPrefix(filepath.Clean(cfg.TempDir), "..") {
		return eris.Errorf("temp_dir must be inside the working directory but is %s", cfg.TempDir)
	}

	if cfg.BuildFile != "" {
		info, err := os.Stat(cfg.BuildFile)
		if err != nil {
			return eris.Wrapf(err, "invalid value for build_file")
		}
		if info.IsDir() {
			return eris.Errorf("build_file %s is a directory", cfg.BuildFile)
		}
	}

	return nil
}

// LogLevel returns the parsed log level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[strings.ToLower(cfg.Log.Level)]
}
