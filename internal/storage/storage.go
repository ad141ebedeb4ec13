package storage

import (
	"context"

	"golang.org/x/xerrors"
)

type Storage interface {
	// Put stores data with the given key and returns the storage URL
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves data from the given storage URL
	Get(ctx context.Context, url string) ([]byte, error)
}

const (
	BackendFile = "file"
	BackendS3   = "s3"
)

type Config struct {
	Backend   string `yaml:"backend"`
	Directory string `yaml:"directory"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
}

// New opens the backend selected by c.Backend.
func New(ctx context.Context, c Config) (Storage, error) {
	switch c.Backend {
	case BackendFile, "":
		return NewFileStorage(ctx, FileConfig{
			Directory: c.Directory,
		})
	case BackendS3:
		return NewS3Storage(ctx, S3Config{
			Bucket:   c.Bucket,
			Prefix:   c.Prefix,
			Endpoint: c.Endpoint,
		})
	default:
		return nil, xerrors.Errorf("unknown storage backend: %s", c.Backend)
	}
}
