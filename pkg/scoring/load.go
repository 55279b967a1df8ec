package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mchmarny/credscore/pkg/data"
	"github.com/mchmarny/credscore/pkg/features"
	"github.com/mchmarny/credscore/pkg/model"
	"github.com/mchmarny/credscore/pkg/net"
	"github.com/mchmarny/credscore/pkg/table"
)

// Config locates the artifacts a Service is built from.
type Config struct {
	ModelPath  string
	ModelURL   string
	ModelToken string
	ORTLibrary string

	ReferencePath  string
	ReferenceTable string
	Label          string
	MissingPolicy  features.MissingPolicy

	// CacheDir receives remote artifacts.
	CacheDir string
}

// Load reads the reference table and model described by cfg and returns a
// ready Service. Any failure here means the service must not start.
func Load(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	ref, err := LoadReference(ctx, cfg)
	if err != nil {
		return nil, err
	}

	label := cfg.Label
	if label == "" {
		label = features.DefaultLabel
	}
	tmpl, err := features.BuildTemplate(ref, label, features.WithMissingPolicy(cfg.MissingPolicy))
	if err != nil {
		return nil, fmt.Errorf("error building template: %w", err)
	}

	modelPath := cfg.ModelPath
	if cfg.ModelURL == "" {
		modelPath, err = net.Fetch(ctx, cfg.ModelPath, cfg.CacheDir)
		if err != nil {
			if notFound(err) {
				return nil, fmt.Errorf("%w: %s", model.ErrArtifactNotFound, cfg.ModelPath)
			}
			return nil, fmt.Errorf("error fetching model: %w", err)
		}
	}

	scorer, err := model.Load(ctx, modelPath, model.Options{
		ORTLibrary: cfg.ORTLibrary,
		RemoteURL:  cfg.ModelURL,
		Token:      cfg.ModelToken,
	})
	if err != nil {
		return nil, fmt.Errorf("error loading model: %w", err)
	}

	slog.Info("scoring service ready", "features", len(tmpl.Columns()), "reference_rows", ref.Len())
	return NewService(scorer, tmpl, opts...)
}

// LoadReference reads the reference feature table from a CSV location or
// a SQL table.
func LoadReference(ctx context.Context, cfg Config) (*table.Table, error) {
	if cfg.ReferencePath == "" {
		return nil, fmt.Errorf("%w: no reference configured", features.ErrResourceNotFound)
	}

	if data.IsDatabase(cfg.ReferencePath) {
		if cfg.ReferenceTable == "" {
			return nil, fmt.Errorf("%w: reference table name required for %s", features.ErrResourceNotFound, cfg.ReferencePath)
		}
		if data.Driver(cfg.ReferencePath) == data.DriverSQLite {
			if _, err := os.Stat(cfg.ReferencePath); err != nil {
				return nil, fmt.Errorf("%w: %s", features.ErrResourceNotFound, cfg.ReferencePath)
			}
		}
		db, err := data.GetDB(cfg.ReferencePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", features.ErrResourceNotFound, err)
		}
		defer db.Close()

		t, err := data.LoadTable(ctx, db, cfg.ReferenceTable)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", features.ErrResourceNotFound, err)
		}
		return t, nil
	}

	path, err := net.Fetch(ctx, cfg.ReferencePath, cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", features.ErrResourceNotFound, err)
	}
	t, err := table.ReadCSVFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", features.ErrResourceNotFound, err)
	}
	return t, nil
}

func notFound(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, net.ErrorURLNotFound)
}
