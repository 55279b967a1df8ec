package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mchmarny/credscore/pkg/config"
	"github.com/mchmarny/credscore/pkg/features"
	"github.com/mchmarny/credscore/pkg/logging"
	"github.com/mchmarny/credscore/pkg/scoring"
	urfave "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "credscore"
	appConfigKey = "app-config"
	cacheDirName = "cache"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	outputFormat = formatJSON
	stdout       io.Writer = os.Stdout

	debugFlag = &urfave.BoolFlag{
		Name:    "debug",
		Usage:   "Prints verbose logs (optional, default: false)",
		EnvVars: []string{"CREDSCORE_DEBUG"},
	}

	logFormatFlag = &urfave.StringFlag{
		Name:    "log-format",
		Usage:   "Log format [cli, text, json]",
		Value:   logging.FormatCLI,
		EnvVars: []string{"CREDSCORE_LOG_FORMAT"},
	}

	configFlag = &urfave.StringFlag{
		Name:    "config",
		Usage:   "Path to the config file (default: ~/.credscore/config.yaml)",
		EnvVars: []string{"CREDSCORE_CONFIG"},
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	modelFlag = &urfave.StringFlag{
		Name:    "model",
		Usage:   "Model artifact: local path, http(s) URL or gs:// URI (.onnx or .json)",
		EnvVars: []string{"CREDSCORE_MODEL"},
	}

	modelURLFlag = &urfave.StringFlag{
		Name:    "model-url",
		Usage:   "Model server URL, used instead of the model artifact",
		EnvVars: []string{"CREDSCORE_MODEL_URL"},
	}

	ortLibFlag = &urfave.StringFlag{
		Name:    "ort-lib",
		Usage:   "Path to the onnxruntime shared library",
		EnvVars: []string{"CREDSCORE_ORT_LIB", "ONNXRUNTIME_SHARED_LIBRARY_PATH"},
	}

	referenceFlag = &urfave.StringFlag{
		Name:    "reference",
		Usage:   "Reference feature table: CSV path or URL, SQLite file, or postgres:// DSN",
		EnvVars: []string{"CREDSCORE_REFERENCE"},
	}

	referenceTableFlag = &urfave.StringFlag{
		Name:    "reference-table",
		Usage:   "Table name when the reference is a database",
		EnvVars: []string{"CREDSCORE_REFERENCE_TABLE"},
	}

	labelFlag = &urfave.StringFlag{
		Name:    "label",
		Usage:   "Outcome column excluded from the features",
		EnvVars: []string{"CREDSCORE_LABEL"},
	}

	strictTemplateFlag = &urfave.BoolFlag{
		Name:    "strict-template",
		Usage:   "Fail when a numeric reference column has no values instead of filling it with 0",
		EnvVars: []string{"CREDSCORE_STRICT_TEMPLATE"},
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	initLogging(false, logging.FormatCLI)

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	HomeDir string
	Debug   bool
	Config  *config.Config
	Service *scoring.Service
}

func getConfig(c *urfave.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

// getService loads the model and reference on first use.
func getService(c *urfave.Context, opts ...scoring.Option) (*scoring.Service, error) {
	cfg := getConfig(c)
	if cfg.Service != nil {
		return cfg.Service, nil
	}

	policy, err := features.ParseMissingPolicy(cfg.Config.Reference.MissingPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	sc := scoring.Config{
		ModelPath:      cfg.Config.Model.Path,
		ModelURL:       cfg.Config.Model.URL,
		ORTLibrary:     cfg.Config.Model.ORTLibrary,
		ReferencePath:  cfg.Config.Reference.Path,
		ReferenceTable: cfg.Config.Reference.Table,
		Label:          cfg.Config.Reference.Label,
		MissingPolicy:  policy,
		CacheDir:       filepath.Join(cfg.HomeDir, cacheDirName),
	}
	if sc.ModelURL != "" {
		if sc.ModelToken, err = getModelToken(cfg.HomeDir); err != nil {
			slog.Debug("no model server token, calling without one", "error", err)
		}
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := scoring.Load(ctx, sc, opts...)
	if err != nil {
		return nil, err
	}
	cfg.Service = svc
	return svc, nil
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:                 appName,
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Credit default risk scoring from a pre-trained model",
		Metadata:             map[string]any{},
		Flags: []urfave.Flag{
			debugFlag,
			logFormatFlag,
			configFlag,
			formatFlag,
			modelFlag,
			modelURLFlag,
			ortLibFlag,
			referenceFlag,
			referenceTableFlag,
			labelFlag,
			strictTemplateFlag,
		},
		Commands: []*urfave.Command{
			scoreCmd,
			batchCmd,
			templateCmd,
			importCmd,
			serverCmd,
			authCmd,
		},
		Before: func(c *urfave.Context) error {
			initLogging(c.Bool(debugFlag.Name), c.String(logFormatFlag.Name))

			f := c.String(formatFlag.Name)
			if f == formatYAML || f == "yml" {
				outputFormat = formatYAML
			}

			home, _, err := config.GetOrCreateHomeDir(appName)
			if err != nil {
				slog.Debug("error getting home dir, using current dir instead", "error", err)
				home = "."
			}

			var conf *config.Config
			if p := c.String(configFlag.Name); p != "" {
				conf, err = config.Read(p)
			} else {
				conf, err = config.ReadOrCreate(home)
			}
			if err != nil {
				return fmt.Errorf("reading config: %w", err)
			}
			applyFlags(c, conf)

			c.App.Metadata[appConfigKey] = &appConfig{
				HomeDir: home,
				Debug:   c.Bool(debugFlag.Name),
				Config:  conf,
			}
			return nil
		},
		After: func(c *urfave.Context) error {
			if cfg, ok := c.App.Metadata[appConfigKey].(*appConfig); ok && cfg.Service != nil {
				if err := cfg.Service.Close(); err != nil {
					slog.Debug("error closing model", "error", err)
				}
			}
			return nil
		},
	}
}

// applyFlags overrides config values with flags or env vars that were set.
func applyFlags(c *urfave.Context, conf *config.Config) {
	set := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	set(modelFlag.Name, &conf.Model.Path)
	set(modelURLFlag.Name, &conf.Model.URL)
	set(ortLibFlag.Name, &conf.Model.ORTLibrary)
	set(referenceFlag.Name, &conf.Reference.Path)
	set(referenceTableFlag.Name, &conf.Reference.Table)
	set(labelFlag.Name, &conf.Reference.Label)

	if c.Bool(strictTemplateFlag.Name) {
		conf.Reference.MissingPolicy = string(features.PolicyError)
	}
}

func initLogging(debug bool, format string) {
	level := "info"
	if debug {
		level = "debug"
	}
	logging.InitLogger(logging.LogConfig{Level: level, Format: format})
}

func encode(v any) error {
	if outputFormat == formatYAML {
		return yaml.NewEncoder(stdout).Encode(v)
	}
	e := json.NewEncoder(stdout)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
