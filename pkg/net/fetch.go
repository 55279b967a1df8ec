package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// IsRemote reports whether uri points at an http(s) or gs location.
func IsRemote(uri string) bool {
	return strings.HasPrefix(uri, "http://") ||
		strings.HasPrefix(uri, "https://") ||
		strings.HasPrefix(uri, gcsScheme)
}

// Fetch makes uri available as a local file and returns its path. Local
// paths are returned as is when they exist; remote ones are copied into dir
// under their base name.
func Fetch(ctx context.Context, uri, dir string) (string, error) {
	if uri == "" {
		return "", errors.New("location required")
	}

	if !IsRemote(uri) {
		if _, err := os.Stat(uri); err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("%s: %w", uri, os.ErrNotExist)
			}
			return "", fmt.Errorf("error checking %s: %w", uri, err)
		}
		return uri, nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("error creating cache dir %s: %w", dir, err)
	}

	name := path.Base(strings.SplitN(uri, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("cannot derive file name from %s", uri)
	}
	dst := filepath.Join(dir, name)

	slog.Debug("fetching artifact", "uri", uri, "path", dst)

	if strings.HasPrefix(uri, gcsScheme) {
		bucket, object, err := ParseGCS(uri)
		if err != nil {
			return "", err
		}
		if err := downloadGCS(ctx, bucket, object, dst); err != nil {
			return "", err
		}
		return dst, nil
	}

	if err := Download(ctx, uri, dst); err != nil {
		return "", fmt.Errorf("error downloading %s: %w", uri, err)
	}
	return dst, nil
}

// ParseGCS splits a gs://bucket/object URI.
func ParseGCS(uri string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(uri, gcsScheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI, expected gs://bucket/object: %s", uri)
	}
	return parts[0], parts[1], nil
}

func downloadGCS(ctx context.Context, bucketName, objectName, dst string) (retErr error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrorURLNotFound
		}
		return fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("read GCS object: %w", err)
	}
	return nil
}
