package upload

import (
	"context"

	"github.com/ethpandaops/smokeoor/pkg/report"
)

// Uploader uploads cycle results files to remote storage.
type Uploader interface {
	report.CycleFileHandler

	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// UploadFile uploads a single results file under the configured prefix,
	// keyed by its basename.
	UploadFile(ctx context.Context, localPath string) error
}
