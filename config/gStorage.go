package config

import (
	"context"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ReportBucket is the GCS bucket discrepancy reports are archived to; empty disables archiving.
func ReportBucket() string {
	return strings.TrimSpace(os.Getenv("REPORT_GCS_BUCKET"))
}

func ReportPrefix() string {
	if v := strings.Trim(strings.TrimSpace(os.Getenv("REPORT_GCS_PREFIX")), "/"); v != "" {
		return v
	}
	return "discrepancies"
}

// GetGCSClient initializes a Google Cloud Storage client.
// Prefers ADC; set GCS_CREDENTIALS_JSON to pass explicit credentials (e.g. locally).
func GetGCSClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}
