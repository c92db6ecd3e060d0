package domain

import (
	"context"
	"time"
)

// InstallationStatus is the lifecycle state of a merchant's installation.
// The set is closed; transitions happen only through the table below,
// driven exclusively by the installations service.
type InstallationStatus string

const (
	StatusInstalling  InstallationStatus = "installing"
	StatusInstalled   InstallationStatus = "installed"
	StatusFailed      InstallationStatus = "failed"
	StatusUpdating    InstallationStatus = "updating"
	StatusUninstalled InstallationStatus = "uninstalled"
)

// transitions is the full lifecycle table. Anything absent is a Conflict.
var transitions = map[InstallationStatus][]InstallationStatus{
	StatusInstalling:  {StatusInstalled, StatusFailed},
	StatusInstalled:   {StatusUpdating, StatusUninstalled},
	StatusUpdating:    {StatusInstalled, StatusFailed},
	StatusFailed:      {StatusInstalled},
	StatusUninstalled: {StatusInstalling},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to InstallationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state admits no completion. Only
// uninstalled rows refuse MarkComplete; a failed install may be retried
// by the client and completed.
func (s InstallationStatus) Terminal() bool {
	return s == StatusUninstalled
}

// Installation is the ledger row for one (merchant, app) pair. The pair
// is unique for the lifetime of the system: reinstalls reuse the row.
type Installation struct {
	ID                   int64              `json:"installation_id" db:"id"`
	MerchantID           string             `json:"merchant_id" db:"merchant_id"`
	AppID                string             `json:"app_id" db:"app_id"`
	Version              string             `json:"version" db:"version"`
	Status               InstallationStatus `json:"installation_status" db:"status"`
	SignedURLGeneratedAt *time.Time         `json:"signed_url_generated_at,omitempty" db:"signed_url_generated_at"`
	SignedURLExpiresAt   *time.Time         `json:"signed_url_expires_at,omitempty" db:"signed_url_expires_at"`
	InstalledAt          time.Time          `json:"installed_at" db:"installed_at"`
	UpdatedAt            time.Time          `json:"updated_at" db:"updated_at"`
	UninstalledAt        *time.Time         `json:"uninstalled_at,omitempty" db:"uninstalled_at"`
}

// InstalledApp annotates a ledger row with catalog context for listings.
type InstalledApp struct {
	Installation
	AppName         string `json:"app_name" db:"app_name"`
	Category        string `json:"category,omitempty" db:"category"`
	UpdateAvailable bool   `json:"update_available"`
	LatestVersion   string `json:"latest_version,omitempty"`
}

// InstallationRepository is the Installation Ledger's persistence
// contract. GetForUpdate takes the row lock that serialises concurrent
// operations on the same (merchant, app) pair; reads outside a
// transaction use Get.
type InstallationRepository interface {
	Get(ctx context.Context, merchantID, appID string) (*Installation, error)

	GetByID(ctx context.Context, id int64, merchantID string) (*Installation, error)

	// GetForUpdate loads the row under FOR UPDATE on the given
	// transaction, blocking concurrent writers of the same pair.
	GetForUpdate(ctx context.Context, tx Tx, merchantID, appID string) (*Installation, error)

	// Create inserts a fresh ledger row. A duplicate pair surfaces as an
	// ErrConflict-kind error.
	Create(ctx context.Context, tx Tx, inst *Installation) error

	// Update persists version, status and the timestamp columns of an
	// existing row.
	Update(ctx context.Context, tx Tx, inst *Installation) error

	// TouchSignedURL refreshes only the signed-URL bookkeeping columns.
	TouchSignedURL(ctx context.Context, id int64, generatedAt, expiresAt time.Time) error

	// ListByMerchant returns the merchant's rows, newest first, filtered
	// to the given statuses (nil means all states).
	ListByMerchant(ctx context.Context, merchantID string, statuses []InstallationStatus) ([]InstalledApp, error)
}
