package main

import (
	"context"

	"github.com/quillworks/loom/internal/config"
	"github.com/quillworks/loom/internal/export"
)

func newS3Uploader(cfg *config.Config) (*export.S3Uploader, error) {
	return export.NewS3Uploader(
		context.Background(),
		cfg.ExportS3Bucket,
		cfg.ExportS3Prefix,
		cfg.ExportS3Region,
		cfg.ExportS3Endpoint,
	)
}
