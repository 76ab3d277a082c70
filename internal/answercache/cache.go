// Package answercache avoids redundant generation calls for repeated
// identical queries. Entries are keyed by an exact-match fingerprint of the
// normalized query and expire after a short TTL.
package answercache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guptaanant682/memorybank-backend/internal/platform/envutil"
)

// Source is one provenance reference carried with a cached answer.
type Source struct {
	DocumentID uuid.UUID `json:"document_id"`
	ChunkID    uuid.UUID `json:"chunk_id"`
	Ordinal    int       `json:"ordinal"`
}

// Entry is a cached generation result.
type Entry struct {
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	Sources    []Source  `json:"sources,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Cache is the answer cache surface. Get misses are (zero, false, nil);
// errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, query string) (Entry, bool, error)
	Set(ctx context.Context, query string, entry Entry) error

	// Flush drops every cached answer. Called after ingestion or deletion
	// changes the underlying knowledge, since any answer may now be stale.
	Flush(ctx context.Context) error
}

// Fingerprint derives the exact-match cache key: the query lowercased with
// inner whitespace collapsed, hashed so keys stay bounded.
func Fingerprint(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

type Config struct {
	TTL     time.Duration
	MaxSize int
}

func ConfigFromEnv() Config {
	return Config{
		TTL:     envutil.Duration("ANSWER_CACHE_TTL", 10*time.Minute),
		MaxSize: envutil.Int("ANSWER_CACHE_SIZE", 256),
	}
}
