package domain

import (
	"context"
	"time"
)

// App is the publisher-facing identity of a distributable application.
// Apps are created implicitly on first version submission and are never
// hard-deleted; deactivation flips is_active instead.
type App struct {
	ID           int64      `json:"-" db:"id"`
	AppID        string     `json:"app_id" db:"app_id"`
	PublisherID  string     `json:"publisher_id" db:"publisher_id"`
	Name         string     `json:"name" db:"name"`
	Description  string     `json:"description,omitempty" db:"description"`
	Category     string     `json:"category,omitempty" db:"category"`
	Tags         []string   `json:"tags,omitempty" db:"-"`
	IconURL      string     `json:"icon_url,omitempty" db:"icon_url"`
	WebsiteURL   string     `json:"website_url,omitempty" db:"website_url"`
	SupportEmail string     `json:"support_email,omitempty" db:"support_email"`
	IsPublished  bool       `json:"is_published" db:"is_published"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	PublishedAt  *time.Time `json:"published_at,omitempty" db:"published_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// AppMetadata is the display payload a publisher sends alongside the first
// version of an app. Subsequent submissions ignore it.
type AppMetadata struct {
	Name         string
	Description  string
	Category     string
	Tags         []string
	IconURL      string
	WebsiteURL   string
	SupportEmail string
}

// AppStatus summarises a single app for its publisher.
type AppStatus struct {
	App           *App   `json:"app"`
	LatestVersion string `json:"latest_version,omitempty"`
	VersionCount  int    `json:"version_count"`
}

// AppRepository is the Application Registry's persistence contract.
// Write methods take the caller's transaction so registry and version
// mutations commit as one unit.
type AppRepository interface {
	// GetByAppID looks the app up regardless of publisher. Used by the
	// registry to detect ownership clashes and by the orchestrator to
	// resolve install targets.
	GetByAppID(ctx context.Context, appID string) (*App, error)

	// GetForPublisher scopes the lookup to the owning publisher and
	// returns ErrNotFound-kind errors for anyone else's apps.
	GetForPublisher(ctx context.Context, appID, publisherID string) (*App, error)

	// Create inserts a new app. The database fills ID and the audit
	// timestamps back into the struct.
	Create(ctx context.Context, tx Tx, app *App) error

	// UpdatePublishState persists is_published and published_at exactly
	// as set on the struct.
	UpdatePublishState(ctx context.Context, tx Tx, app *App) error
}
