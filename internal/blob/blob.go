// Package blob selects the blob storage engine that holds artifact content.
package blob

import (
	"context"
	"fmt"

	"cargohold/internal/blob/core"
	"cargohold/internal/infra/blob/fs"
	"cargohold/internal/infra/blob/memory"
	"cargohold/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 engine.
	S3Config = s3.Config
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrNotFound reports a missing blob.
	ErrNotFound = core.ErrNotFound
	// ErrExists reports a create-only Put on an existing key.
	ErrExists = core.ErrExists
)

// ArtifactKey is the blob key of an artifact file.
func ArtifactKey(storageID, repositoryID, artifactPath string) string {
	return core.ArtifactKey(storageID, repositoryID, artifactPath)
}

// Config selects and configures an engine.
type Config struct {
	Driver Driver `yaml:"driver"`
	// FSRoot is the directory root when Driver is fs (default ./blobdata).
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// Open builds the engine cfg selects. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
