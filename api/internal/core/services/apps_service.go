package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"bazaar/api/internal/core/domain"
)

// allowedExtensions is the closed set of artifact types the store accepts.
var allowedExtensions = map[string]bool{
	".zip": true,
	".apk": true,
	".ipa": true,
}

// AppsService owns the Application Registry and the Version Store: app
// identity, the publish flag, and the single latest pointer per app.
type AppsService struct {
	apps     domain.AppRepository
	versions domain.VersionRepository
	storage  domain.ObjectStorage
	uow      domain.UnitOfWork
	logger   *slog.Logger
}

func NewAppsService(
	apps domain.AppRepository,
	versions domain.VersionRepository,
	storage domain.ObjectStorage,
	uow domain.UnitOfWork,
	logger *slog.Logger,
) *AppsService {
	return &AppsService{
		apps:     apps,
		versions: versions,
		storage:  storage,
		uow:      uow,
		logger:   logger,
	}
}

// SubmitVersionInput is the full payload of one build submission.
type SubmitVersionInput struct {
	AppID              string
	Version            string
	Metadata           domain.AppMetadata
	Changelog          string
	MinPlatformVersion string
	SupportedPlatforms []string
	Artifact           domain.Artifact
}

// SubmitVersionResult pairs the (possibly just created) app with the new
// version row.
type SubmitVersionResult struct {
	App     *domain.App        `json:"app"`
	Version *domain.AppVersion `json:"version"`
}

// SubmitVersion accepts a new build for an app, creating the app on first
// submission. On success the new version is completed and flagged latest;
// the previous latest is unflagged in the same transaction so readers
// never observe zero or two latest rows.
func (s *AppsService) SubmitVersion(ctx context.Context, publisherID string, in SubmitVersionInput) (*SubmitVersionResult, error) {
	ext := strings.ToLower(filepath.Ext(in.Artifact.FileName))
	if !allowedExtensions[ext] {
		return nil, domain.BadRequest("invalid file type, allowed: zip, apk, ipa")
	}

	// Ownership check before anything touches storage. App ids are
	// globally unique and owned by their first creator.
	app, err := s.apps.GetByAppID(ctx, in.AppID)
	if err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return nil, err
	}
	if app != nil && app.PublisherID != publisherID {
		return nil, domain.Forbidden("app id is owned by another publisher")
	}

	exists, err := s.versions.Exists(ctx, in.AppID, in.Version)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.Conflict("version already exists for this app")
	}

	contentType := in.Artifact.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(in.Artifact.Data).String()
	}

	key := fmt.Sprintf("%s/%s/%s/%s_%s%s", publisherID, in.AppID, in.Version, in.AppID, in.Version, ext)
	upload, err := s.storage.Put(ctx, key, domain.Artifact{
		FileName:    in.Artifact.FileName,
		ContentType: contentType,
		Data:        in.Artifact.Data,
	}, map[string]string{
		"original-name": in.Artifact.FileName,
		"publisher-id":  publisherID,
		"app-id":        in.AppID,
		"version":       in.Version,
	})
	if err != nil {
		return nil, domain.Upstream("artifact upload failed", err)
	}

	newVersion := &domain.AppVersion{
		AppID:              in.AppID,
		PublisherID:        publisherID,
		Version:            in.Version,
		StorageKey:         upload.Key,
		StorageURL:         upload.URL,
		FileName:           in.Artifact.FileName,
		FileSizeBytes:      upload.Size,
		Changelog:          in.Changelog,
		IsLatest:           true,
		MinPlatformVersion: in.MinPlatformVersion,
		SupportedPlatforms: in.SupportedPlatforms,
		UploadStatus:       domain.UploadCompleted,
	}

	err = domain.RunInTx(ctx, s.uow, func(tx domain.Tx) error {
		if app == nil {
			app = &domain.App{
				AppID:        in.AppID,
				PublisherID:  publisherID,
				Name:         in.Metadata.Name,
				Description:  in.Metadata.Description,
				Category:     in.Metadata.Category,
				Tags:         in.Metadata.Tags,
				IconURL:      in.Metadata.IconURL,
				WebsiteURL:   in.Metadata.WebsiteURL,
				SupportEmail: in.Metadata.SupportEmail,
				IsPublished:  false,
				IsActive:     true,
			}
			if err := s.apps.Create(ctx, tx, app); err != nil {
				return err
			}
		}

		// Flip the latest pointer atomically with the insert. No other
		// code path writes is_latest.
		if err := s.versions.ClearLatest(ctx, tx, in.AppID); err != nil {
			return err
		}
		return s.versions.Create(ctx, tx, newVersion)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("version submitted",
		slog.String("app_id", in.AppID),
		slog.String("version", in.Version),
		slog.String("publisher_id", publisherID),
		slog.Int64("size_bytes", upload.Size))

	return &SubmitVersionResult{App: app, Version: newVersion}, nil
}

// SetPublished toggles an app's publish flag for its owner. Publishing
// requires at least one completed version. published_at records the
// first moment of the current publish window: set on false->true,
// cleared on true->false, untouched by idempotent toggles.
func (s *AppsService) SetPublished(ctx context.Context, publisherID, appID string, published bool) (*domain.App, error) {
	app, err := s.apps.GetForPublisher(ctx, appID, publisherID)
	if err != nil {
		return nil, err
	}

	if published && !app.IsPublished {
		count, err := s.versions.CountForApp(ctx, appID)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, domain.BadRequest("cannot publish an app without a completed version")
		}
		now := time.Now().UTC()
		app.PublishedAt = &now
	}
	if !published && app.IsPublished {
		app.PublishedAt = nil
	}
	if app.IsPublished == published {
		return app, nil
	}
	app.IsPublished = published

	err = domain.RunInTx(ctx, s.uow, func(tx domain.Tx) error {
		return s.apps.UpdatePublishState(ctx, tx, app)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("publish state changed",
		slog.String("app_id", appID),
		slog.Bool("published", published))

	return app, nil
}

// Status reports an app's publish state and version summary to its owner.
func (s *AppsService) Status(ctx context.Context, publisherID, appID string) (*domain.AppStatus, error) {
	app, err := s.apps.GetForPublisher(ctx, appID, publisherID)
	if err != nil {
		return nil, err
	}

	count, err := s.versions.CountForApp(ctx, appID)
	if err != nil {
		return nil, err
	}

	status := &domain.AppStatus{App: app, VersionCount: count}
	latest, err := s.versions.GetLatest(ctx, appID)
	if err == nil {
		status.LatestVersion = latest.Version
	} else if !domain.IsKind(err, domain.KindNotFound) {
		return nil, err
	}
	return status, nil
}
