// Package media converts audio and images into plain text so documents
// from any source flow through the same ingestion pipeline.
package media

import (
	"google.golang.org/api/option"

	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
)

// clientOptionsFromEnv builds GCP client options. With nothing configured
// the client libraries fall back to application default credentials.
func clientOptionsFromEnv() []option.ClientOption {
	var opts []option.ClientOption
	if f := envutil.Str("GCP_CREDENTIALS_FILE", ""); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}
	if j := envutil.Str("GCP_CREDENTIALS_JSON", ""); j != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(j)))
	}
	return opts
}
