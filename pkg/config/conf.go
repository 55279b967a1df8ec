package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600

	DefaultModelPath     = "models/final_model.onnx"
	DefaultReferencePath = "data/processed/train_fe.csv"
	DefaultLabel         = "TARGET"
	DefaultMissingPolicy = "zero"
	DefaultPort          = 8080
)

// Config represents app config object.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Reference ReferenceConfig `yaml:"reference"`
	Server    ServerConfig    `yaml:"server"`
}

// ModelConfig locates the scoring model.
type ModelConfig struct {
	// Path is a local file, http(s) URL or gs:// URI.
	Path string `yaml:"path"`
	// URL of a model server used instead of Path when set.
	URL string `yaml:"url,omitempty"`
	// ORTLibrary is the onnxruntime shared library path.
	ORTLibrary string `yaml:"ortLibrary,omitempty"`
}

// ReferenceConfig locates the reference feature table.
type ReferenceConfig struct {
	// Path is a CSV file or URL, a SQLite file, or a postgres:// DSN.
	Path string `yaml:"path"`
	// Table names the SQL table when Path is a database.
	Table         string `yaml:"table,omitempty"`
	Label         string `yaml:"label"`
	MissingPolicy string `yaml:"missingPolicy"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns the config used when no file exists.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Path: DefaultModelPath,
		},
		Reference: ReferenceConfig{
			Path:          DefaultReferencePath,
			Label:         DefaultLabel,
			MissingPolicy: DefaultMissingPolicy,
		},
		Server: ServerConfig{
			Port: DefaultPort,
		},
	}
}

// fill sets defaults for fields an older or hand-edited file left empty.
func (c *Config) fill() {
	d := Default()
	if c.Model.Path == "" {
		c.Model.Path = d.Model.Path
	}
	if c.Reference.Path == "" {
		c.Reference.Path = d.Reference.Path
	}
	if c.Reference.Label == "" {
		c.Reference.Label = d.Reference.Label
	}
	if c.Reference.MissingPolicy == "" {
		c.Reference.MissingPolicy = d.Reference.MissingPolicy
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", configFileName)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		err := os.MkdirAll(dirPath, dirMode)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create dir: %s", dirPath)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default()); err != nil {
			return nil, errors.Wrap(err, "failed to create default config")
		}
	}

	return Read(path)
}

// Read loads the config file at path.
func Read(path string) (*Config, error) {
	j, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening config file: %s", path)
	}
	defer j.Close()

	b, err := io.ReadAll(j)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file %s", path)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file %s", path)
	}
	c.fill()
	return &c, nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get user home dir")
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		err := os.Mkdir(dir, dirMode)
		if err != nil {
			return "", false, errors.Wrapf(err, "failed to create dir: %s", dir)
		}
		created = true
	}
	return dir, created, nil
}
