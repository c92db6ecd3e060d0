package domain

import (
	"context"
	"time"
)

// UploadStatus tracks whether a version's artifact made it into object
// storage. Only completed versions are eligible for the latest pointer or
// for installation.
type UploadStatus string

const (
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

// AppVersion is one immutable build of an app. The (app_id, version)
// pair is unique; at most one row per app carries is_latest = true.
type AppVersion struct {
	ID                 int64        `json:"-" db:"id"`
	AppID              string       `json:"app_id" db:"app_id"`
	PublisherID        string       `json:"publisher_id" db:"publisher_id"`
	Version            string       `json:"version" db:"version"`
	StorageKey         string       `json:"-" db:"storage_key"`
	StorageURL         string       `json:"storage_url,omitempty" db:"storage_url"`
	FileName           string       `json:"file_name,omitempty" db:"file_name"`
	FileSizeBytes      int64        `json:"file_size_bytes,omitempty" db:"file_size_bytes"`
	Changelog          string       `json:"changelog,omitempty" db:"changelog"`
	IsLatest           bool         `json:"is_latest" db:"is_latest"`
	MinPlatformVersion string       `json:"minimum_platform_version,omitempty" db:"min_platform_version"`
	SupportedPlatforms []string     `json:"supported_platforms,omitempty" db:"-"`
	UploadStatus       UploadStatus `json:"upload_status" db:"upload_status"`
	UploadedAt         time.Time    `json:"uploaded_at" db:"uploaded_at"`
}

// VersionRepository is the Version Store's persistence contract.
//
// The clear-latest / insert-latest pair MUST run on the same transaction:
// a reader racing a submission must never observe zero or two latest rows
// for one app.
type VersionRepository interface {
	// GetExact returns the given completed version of the app.
	GetExact(ctx context.Context, appID, version string) (*AppVersion, error)

	// GetLatest returns the completed version currently flagged latest,
	// or an ErrNotFound-kind error if the app has no completed version.
	GetLatest(ctx context.Context, appID string) (*AppVersion, error)

	// Exists reports whether any row (regardless of upload status)
	// already claims this version string for the app.
	Exists(ctx context.Context, appID, version string) (bool, error)

	// CountForApp returns the number of completed versions of the app.
	CountForApp(ctx context.Context, appID string) (int, error)

	// ClearLatest drops the is_latest flag from every version of the app.
	ClearLatest(ctx context.Context, tx Tx, appID string) error

	// Create inserts the version row exactly as given. Unique-constraint
	// violations surface as ErrConflict-kind errors.
	Create(ctx context.Context, tx Tx, v *AppVersion) error
}
