// Package blob re-exports the artifact store abstraction and selects a
// backend from the environment.
package blob

import (
	"context"
	"fmt"
	"os"

	"batchcore/internal/blob/core"
	fsblob "batchcore/internal/infra/blob/fs"
	memoryblob "batchcore/internal/infra/blob/memory"
	s3blob "batchcore/internal/infra/blob/s3"
)

type (
	// Driver identifies an artifact backend driver.
	Driver = core.Driver
	// PutOptions configures an artifact write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored artifact metadata.
	Info = core.Info
	// Store is the interface artifact backends implement.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrUnsupported indicates an operation a driver does not provide.
var ErrUnsupported = core.ErrUnsupported

// Open selects an artifact store implementation from the environment.
//
//	BATCHCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	BATCHCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./artifacts)
//	(S3 variables are documented in the s3 package.)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("BATCHCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fsblob.New(os.Getenv("BATCHCORE_BLOB_FS_ROOT"))
	case DriverS3:
		return s3blob.OpenFromEnv(ctx)
	case DriverMemory:
		return memoryblob.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
