package services_test

import (
	"context"
	"fmt"
	"time"

	"bazaar/api/internal/core/domain"
)

// In-memory doubles for the persistence and infrastructure contracts.
// They enforce the same uniqueness rules as the real schema so the
// services are exercised against honest conflict behaviour.

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type fakeUOW struct {
	txs []*fakeTx
}

func (u *fakeUOW) Begin(ctx context.Context) (domain.Tx, error) {
	tx := &fakeTx{}
	u.txs = append(u.txs, tx)
	return tx, nil
}

func (u *fakeUOW) lastTx() *fakeTx {
	if len(u.txs) == 0 {
		return nil
	}
	return u.txs[len(u.txs)-1]
}

type fakeAppRepo struct {
	apps map[string]*domain.App
}

func newFakeAppRepo() *fakeAppRepo {
	return &fakeAppRepo{apps: make(map[string]*domain.App)}
}

func (r *fakeAppRepo) GetByAppID(ctx context.Context, appID string) (*domain.App, error) {
	app, ok := r.apps[appID]
	if !ok {
		return nil, domain.NotFound("app not found")
	}
	cp := *app
	return &cp, nil
}

func (r *fakeAppRepo) GetForPublisher(ctx context.Context, appID, publisherID string) (*domain.App, error) {
	app, ok := r.apps[appID]
	if !ok || app.PublisherID != publisherID {
		return nil, domain.NotFound("app not found")
	}
	cp := *app
	return &cp, nil
}

func (r *fakeAppRepo) Create(ctx context.Context, tx domain.Tx, app *domain.App) error {
	if _, ok := r.apps[app.AppID]; ok {
		return domain.Conflict("app id is already registered")
	}
	app.ID = int64(len(r.apps) + 1)
	app.CreatedAt = time.Now()
	app.UpdatedAt = app.CreatedAt
	cp := *app
	r.apps[app.AppID] = &cp
	return nil
}

func (r *fakeAppRepo) UpdatePublishState(ctx context.Context, tx domain.Tx, app *domain.App) error {
	stored, ok := r.apps[app.AppID]
	if !ok {
		return domain.NotFound("app not found")
	}
	stored.IsPublished = app.IsPublished
	stored.PublishedAt = app.PublishedAt
	stored.UpdatedAt = time.Now()
	return nil
}

type fakeVersionRepo struct {
	versions []*domain.AppVersion
	nextID   int64
}

func newFakeVersionRepo() *fakeVersionRepo {
	return &fakeVersionRepo{}
}

func (r *fakeVersionRepo) GetExact(ctx context.Context, appID, version string) (*domain.AppVersion, error) {
	for _, v := range r.versions {
		if v.AppID == appID && v.Version == version && v.UploadStatus == domain.UploadCompleted {
			cp := *v
			return &cp, nil
		}
	}
	return nil, domain.NotFound(fmt.Sprintf("version %s not found for this app", version))
}

func (r *fakeVersionRepo) GetLatest(ctx context.Context, appID string) (*domain.AppVersion, error) {
	for _, v := range r.versions {
		if v.AppID == appID && v.IsLatest && v.UploadStatus == domain.UploadCompleted {
			cp := *v
			return &cp, nil
		}
	}
	return nil, domain.NotFound("no completed versions available for this app")
}

func (r *fakeVersionRepo) Exists(ctx context.Context, appID, version string) (bool, error) {
	for _, v := range r.versions {
		if v.AppID == appID && v.Version == version {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeVersionRepo) CountForApp(ctx context.Context, appID string) (int, error) {
	count := 0
	for _, v := range r.versions {
		if v.AppID == appID && v.UploadStatus == domain.UploadCompleted {
			count++
		}
	}
	return count, nil
}

func (r *fakeVersionRepo) ClearLatest(ctx context.Context, tx domain.Tx, appID string) error {
	for _, v := range r.versions {
		if v.AppID == appID {
			v.IsLatest = false
		}
	}
	return nil
}

func (r *fakeVersionRepo) Create(ctx context.Context, tx domain.Tx, v *domain.AppVersion) error {
	for _, existing := range r.versions {
		if existing.AppID == v.AppID && existing.Version == v.Version {
			return domain.Conflict("version already exists for this app")
		}
	}
	r.nextID++
	v.ID = r.nextID
	v.UploadedAt = time.Now()
	cp := *v
	r.versions = append(r.versions, &cp)
	return nil
}

// latestCount reports how many rows of the app carry the latest flag.
func (r *fakeVersionRepo) latestCount(appID string) int {
	count := 0
	for _, v := range r.versions {
		if v.AppID == appID && v.IsLatest {
			count++
		}
	}
	return count
}

type fakeInstallationRepo struct {
	rows   map[string]*domain.Installation // key merchantID + "/" + appID
	nextID int64
}

func newFakeInstallationRepo() *fakeInstallationRepo {
	return &fakeInstallationRepo{rows: make(map[string]*domain.Installation)}
}

func instKey(merchantID, appID string) string { return merchantID + "/" + appID }

func (r *fakeInstallationRepo) Get(ctx context.Context, merchantID, appID string) (*domain.Installation, error) {
	row, ok := r.rows[instKey(merchantID, appID)]
	if !ok {
		return nil, domain.NotFound("no installation found for this app")
	}
	cp := *row
	return &cp, nil
}

func (r *fakeInstallationRepo) GetByID(ctx context.Context, id int64, merchantID string) (*domain.Installation, error) {
	for _, row := range r.rows {
		if row.ID == id && row.MerchantID == merchantID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, domain.NotFound("installation not found")
}

func (r *fakeInstallationRepo) GetForUpdate(ctx context.Context, tx domain.Tx, merchantID, appID string) (*domain.Installation, error) {
	return r.Get(ctx, merchantID, appID)
}

func (r *fakeInstallationRepo) Create(ctx context.Context, tx domain.Tx, inst *domain.Installation) error {
	key := instKey(inst.MerchantID, inst.AppID)
	if _, ok := r.rows[key]; ok {
		return domain.Conflict("installation already exists for this app")
	}
	r.nextID++
	inst.ID = r.nextID
	inst.UpdatedAt = time.Now()
	cp := *inst
	r.rows[key] = &cp
	return nil
}

func (r *fakeInstallationRepo) Update(ctx context.Context, tx domain.Tx, inst *domain.Installation) error {
	key := instKey(inst.MerchantID, inst.AppID)
	if _, ok := r.rows[key]; !ok {
		return domain.NotFound("installation not found")
	}
	cp := *inst
	r.rows[key] = &cp
	return nil
}

func (r *fakeInstallationRepo) TouchSignedURL(ctx context.Context, id int64, generatedAt, expiresAt time.Time) error {
	for _, row := range r.rows {
		if row.ID == id {
			row.SignedURLGeneratedAt = &generatedAt
			row.SignedURLExpiresAt = &expiresAt
			return nil
		}
	}
	return domain.NotFound("installation not found")
}

func (r *fakeInstallationRepo) ListByMerchant(ctx context.Context, merchantID string, statuses []domain.InstallationStatus) ([]domain.InstalledApp, error) {
	var out []domain.InstalledApp
	for _, row := range r.rows {
		if row.MerchantID != merchantID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, s := range statuses {
				if row.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, domain.InstalledApp{Installation: *row})
	}
	return out, nil
}

type fakeStorage struct {
	puts    []string
	failErr error
}

func (s *fakeStorage) Put(ctx context.Context, key string, artifact domain.Artifact, metadata map[string]string) (*domain.UploadResult, error) {
	if s.failErr != nil {
		return nil, s.failErr
	}
	s.puts = append(s.puts, key)
	return &domain.UploadResult{
		Key:  key,
		URL:  "https://artifacts.test/" + key,
		Size: int64(len(artifact.Data)),
	}, nil
}

type fakeIssuer struct {
	degraded bool
	issued   []string
}

func (f *fakeIssuer) Issue(ctx context.Context, storageKey string, validity time.Duration) domain.SignedGrant {
	f.issued = append(f.issued, storageKey)
	now := time.Now().UTC()
	grant := domain.SignedGrant{
		URL:       "https://cdn.test/" + storageKey + "?Expires=123",
		IssuedAt:  now,
		ExpiresAt: now.Add(validity),
		Degraded:  f.degraded,
	}
	if f.degraded {
		grant.URL = "https://direct.test/" + storageKey
	}
	return grant
}

func (f *fakeIssuer) Validate(url string) bool { return !f.degraded }
