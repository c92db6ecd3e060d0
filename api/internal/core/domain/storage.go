package domain

import (
	"context"
	"time"
)

// Artifact is a build file handed to object storage.
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}

// UploadResult is what object storage reports back after a put.
type UploadResult struct {
	Key  string
	URL  string
	Size int64
}

// ObjectStorage is the raw artifact store. Implementations must respect
// the context deadline; the core treats failures here as Upstream.
type ObjectStorage interface {
	Put(ctx context.Context, key string, artifact Artifact, metadata map[string]string) (*UploadResult, error)
}

// SignedGrant is a time-bounded download URL plus its issuance window.
// Degraded marks grants whose URL could not be signed: installation
// bookkeeping proceeds anyway, but callers that need an authoritative
// signature can tell the difference.
type SignedGrant struct {
	URL       string    `json:"download_url"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Degraded  bool      `json:"-"`
}

// AccessIssuer issues signed download URLs for storage keys. Issue never
// returns an error for signing failures: it degrades to an unsigned
// direct URL instead, because a URL-signing outage must not block the
// installation ledger.
type AccessIssuer interface {
	Issue(ctx context.Context, storageKey string, validity time.Duration) SignedGrant

	// Validate checks an issued URL's embedded expiry against now.
	// Diagnostic only; the ledger never re-checks expiry.
	Validate(url string) bool
}
