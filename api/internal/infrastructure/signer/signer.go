// Package signer issues time-bounded download URLs for stored artifacts.
package signer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"bazaar/api/internal/core/domain"
)

// CDNSigner signs CDN download URLs with an HMAC over the storage key
// and expiry. When signing is impossible (no key material, cancelled
// context) it degrades to the direct storage URL instead of failing:
// installation bookkeeping must not be blocked by a signing outage.
type CDNSigner struct {
	cdnBase      string // e.g. https://cdn.example.com
	keyID        string
	secret       []byte
	fallbackBase string // e.g. https://bucket.s3.region.amazonaws.com
	logger       *slog.Logger

	now func() time.Time // test seam
}

func NewCDNSigner(cdnBase, keyID, secret, fallbackBase string, logger *slog.Logger) *CDNSigner {
	return &CDNSigner{
		cdnBase:      cdnBase,
		keyID:        keyID,
		secret:       []byte(secret),
		fallbackBase: fallbackBase,
		logger:       logger,
		now:          time.Now,
	}
}

// Issue returns a grant valid for the given window. The grant is marked
// degraded when the returned URL is unsigned.
func (s *CDNSigner) Issue(ctx context.Context, storageKey string, validity time.Duration) domain.SignedGrant {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(validity)

	grant := domain.SignedGrant{
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}

	if ctx.Err() != nil || s.cdnBase == "" || len(s.secret) == 0 {
		if ctx.Err() != nil {
			s.logger.Warn("url signing skipped, deadline exceeded",
				slog.String("storage_key", storageKey))
		} else {
			s.logger.Warn("url signing unavailable, issuing direct url",
				slog.String("storage_key", storageKey))
		}
		grant.URL = fmt.Sprintf("%s/%s", s.fallbackBase, storageKey)
		grant.Degraded = true
		return grant
	}

	grant.URL = fmt.Sprintf("%s/%s?Expires=%d&KeyId=%s&Signature=%s",
		s.cdnBase, storageKey, expiresAt.Unix(), s.keyID,
		s.sign(storageKey, expiresAt.Unix()))
	return grant
}

// Validate checks the embedded expiry of an issued URL against now.
// Diagnostic only: a URL without an Expires parameter (a degraded grant)
// reports invalid.
func (s *CDNSigner) Validate(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	expires := parsed.Query().Get("Expires")
	if expires == "" {
		return false
	}
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	return s.now().Unix() < unix
}

func (s *CDNSigner) sign(storageKey string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%d", storageKey, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}
