package domain

import "context"

// CatalogFilter narrows the public app listing.
type CatalogFilter struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

// CatalogApp is one listing entry: published, active apps annotated with
// their latest completed version.
type CatalogApp struct {
	AppID         string  `json:"app_id" db:"app_id"`
	Name          string  `json:"name" db:"name"`
	Description   string  `json:"description,omitempty" db:"description"`
	Category      string  `json:"category,omitempty" db:"category"`
	IconURL       string  `json:"icon_url,omitempty" db:"icon_url"`
	PublisherID   string  `json:"publisher_id" db:"publisher_id"`
	PublisherName string  `json:"publisher_name,omitempty" db:"publisher_name"`
	LatestVersion *string `json:"latest_version,omitempty" db:"latest_version"`
}

// CatalogAppDetails adds the full version history to a listing entry.
type CatalogAppDetails struct {
	App      *App         `json:"app"`
	Versions []AppVersion `json:"versions"`
}

// CatalogRepository serves the read-only store browsing surface. It only
// ever sees published, active apps.
type CatalogRepository interface {
	ListPublished(ctx context.Context, filter CatalogFilter) ([]CatalogApp, int, error)
	AppDetails(ctx context.Context, appID string) (*CatalogAppDetails, error)
	Categories(ctx context.Context) ([]string, error)
}
