//go:build gcp

package storage

import (
	"context"
	"fmt"
	"os"
)

func newGCSStoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("PACKD_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("PACKD_GCS_BUCKET is required for GCS storage")
	}

	cfg := GCSStoreConfig{
		Bucket: bucket,
		Prefix: os.Getenv("PACKD_GCS_PREFIX"),
	}

	return NewGCSStore(ctx, cfg)
}
