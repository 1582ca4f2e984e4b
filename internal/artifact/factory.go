package artifact

import (
	"context"
	"fmt"
)

// New builds the configured Store backend: "s3" or "local".
func New(ctx context.Context, backend, s3Bucket, s3Region, localDir string) (Store, error) {
	switch backend {
	case "s3":
		return NewS3Store(ctx, s3Region, s3Bucket)
	case "local", "":
		return NewLocalStore(localDir)
	default:
		return nil, fmt.Errorf("artifact: unknown storage backend %q", backend)
	}
}
