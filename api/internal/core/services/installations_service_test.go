package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/api/internal/core/domain"
	"bazaar/api/internal/core/services"
)

type installFixture struct {
	svc      *services.InstallationsService
	apps     *fakeAppRepo
	versions *fakeVersionRepo
	ledger   *fakeInstallationRepo
	issuer   *fakeIssuer
	uow      *fakeUOW
}

func newInstallFixture() *installFixture {
	f := &installFixture{
		apps:     newFakeAppRepo(),
		versions: newFakeVersionRepo(),
		ledger:   newFakeInstallationRepo(),
		issuer:   &fakeIssuer{},
		uow:      &fakeUOW{},
	}
	f.svc = services.NewInstallationsService(f.apps, f.versions, f.ledger, f.issuer, f.uow, discardLogger())
	return f
}

// seedApp registers a published, active app with the given completed
// versions; the last one is flagged latest.
func (f *installFixture) seedApp(appID string, versions ...string) {
	f.apps.apps[appID] = &domain.App{
		AppID:       appID,
		PublisherID: "pub-1",
		Name:        "Weather Widget",
		IsPublished: true,
		IsActive:    true,
	}
	for i, v := range versions {
		f.versions.versions = append(f.versions.versions, &domain.AppVersion{
			AppID:        appID,
			PublisherID:  "pub-1",
			Version:      v,
			StorageKey:   "pub-1/" + appID + "/" + v + "/build.zip",
			IsLatest:     i == len(versions)-1,
			UploadStatus: domain.UploadCompleted,
		})
	}
}

func TestInstall_LatestVersionByDefault(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0", "1.1.0")

	result, err := f.svc.Install(context.Background(), "merchant-1", "com.acme.weather", "")

	require.NoError(t, err)
	assert.Equal(t, "1.1.0", result.Version)
	assert.Equal(t, domain.StatusInstalling, result.Status)
	assert.False(t, result.Reinstall)
	assert.NotEmpty(t, result.Grant.URL)
	assert.True(t, f.uow.lastTx().committed)

	row, err := f.ledger.Get(context.Background(), "merchant-1", "com.acme.weather")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInstalling, row.Status)
	require.NotNil(t, row.SignedURLExpiresAt)
}

func TestInstall_HonoursRequestedVersion(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0", "1.1.0")

	result, err := f.svc.Install(context.Background(), "merchant-1", "com.acme.weather", "1.0.0")

	require.NoError(t, err)
	assert.Equal(t, "1.0.0", result.Version)
}

func TestInstall_UnknownVersionNotFound(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0")

	_, err := f.svc.Install(context.Background(), "merchant-1", "com.acme.weather", "9.9.9")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestInstall_UnpublishedAppNotFound(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0")
	f.apps.apps["com.acme.weather"].IsPublished = false

	_, err := f.svc.Install(context.Background(), "merchant-1", "com.acme.weather", "")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestInstall_SecondInstallConflicts(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0")
	ctx := context.Background()

	_, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "")
	require.NoError(t, err)

	_, err = f.svc.Install(ctx, "merchant-1", "com.acme.weather", "")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConflict))
}

func TestInstall_ReinstallReusesRow(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0", "1.1.0")
	ctx := context.Background()

	first, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "1.0.0")
	require.NoError(t, err)
	_, err = f.svc.MarkComplete(ctx, "merchant-1", first.InstallationID)
	require.NoError(t, err)
	_, err = f.svc.Uninstall(ctx, "merchant-1", "com.acme.weather")
	require.NoError(t, err)

	second, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "")
	require.NoError(t, err)

	assert.True(t, second.Reinstall)
	assert.Equal(t, first.InstallationID, second.InstallationID, "the pair keeps one ledger row forever")
	assert.Equal(t, "1.1.0", second.Version)

	row, err := f.ledger.Get(ctx, "merchant-1", "com.acme.weather")
	require.NoError(t, err)
	assert.Nil(t, row.UninstalledAt)
	assert.Equal(t, domain.StatusInstalling, row.Status)
}

func TestMarkComplete_SettlesInstall(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0")
	ctx := context.Background()

	result, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "")
	require.NoError(t, err)

	row, err := f.svc.MarkComplete(ctx, "merchant-1", result.InstallationID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInstalled, row.Status)

	// Idempotent: a second completion is a no-op success.
	row, err = f.svc.MarkComplete(ctx, "merchant-1", result.InstallationID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInstalled, row.Status)
}

func TestMarkComplete_UninstalledRowConflicts(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0")
	ctx := context.Background()

	result, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "")
	require.NoError(t, err)
	_, err = f.svc.MarkComplete(ctx, "merchant-1", result.InstallationID)
	require.NoError(t, err)
	_, err = f.svc.Uninstall(ctx, "merchant-1", "com.acme.weather")
	require.NoError(t, err)

	_, err = f.svc.MarkComplete(ctx, "merchant-1", result.InstallationID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConflict))
}

func TestMarkComplete_ForeignMerchantNotFound(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0")
	ctx := context.Background()

	result, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "")
	require.NoError(t, err)

	_, err = f.svc.MarkComplete(ctx, "merchant-2", result.InstallationID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestUpdate_MovesToLatest(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0", "1.1.0")
	ctx := context.Background()

	install, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "1.0.0")
	require.NoError(t, err)
	_, err = f.svc.MarkComplete(ctx, "merchant-1", install.InstallationID)
	require.NoError(t, err)

	result, err := f.svc.Update(ctx, "merchant-1", "com.acme.weather")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", result.PreviousVersion)
	assert.Equal(t, "1.1.0", result.NewVersion)
	assert.Equal(t, domain.StatusUpdating, result.Status)

	_, err = f.svc.MarkComplete(ctx, "merchant-1", result.InstallationID)
	require.NoError(t, err)

	row, err := f.ledger.Get(ctx, "merchant-1", "com.acme.weather")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInstalled, row.Status)
	assert.Equal(t, "1.1.0", row.Version)
}

func TestUpdate_AlreadyOnLatestConflicts(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0")
	ctx := context.Background()

	install, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "")
	require.NoError(t, err)
	_, err = f.svc.MarkComplete(ctx, "merchant-1", install.InstallationID)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "merchant-1", "com.acme.weather")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConflict))
}

func TestUpdate_InFlightInstallNotFound(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0", "1.1.0")
	ctx := context.Background()

	_, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "1.0.0")
	require.NoError(t, err)

	// Still installing, not installed.
	_, err = f.svc.Update(ctx, "merchant-1", "com.acme.weather")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestUninstall_RequiresInstalledState(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0")
	ctx := context.Background()

	_, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "")
	require.NoError(t, err)

	_, err = f.svc.Uninstall(ctx, "merchant-1", "com.acme.weather")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConflict))
}

func TestUninstall_SoftDeletesRow(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0")
	ctx := context.Background()

	install, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "")
	require.NoError(t, err)
	_, err = f.svc.MarkComplete(ctx, "merchant-1", install.InstallationID)
	require.NoError(t, err)

	result, err := f.svc.Uninstall(ctx, "merchant-1", "com.acme.weather")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInstalled, result.PreviousStatus)

	row, err := f.ledger.Get(ctx, "merchant-1", "com.acme.weather")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUninstalled, row.Status)
	require.NotNil(t, row.UninstalledAt)
	assert.Equal(t, "1.0.0", row.Version, "version history survives the uninstall")
}

func TestListInstalled_AnnotatesUpdates(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0", "1.10.0")
	f.seedApp("com.acme.notes", "2.0.0")
	ctx := context.Background()

	for _, appID := range []string{"com.acme.weather", "com.acme.notes"} {
		var v string
		if appID == "com.acme.weather" {
			v = "1.0.0"
		}
		install, err := f.svc.Install(ctx, "merchant-1", appID, v)
		require.NoError(t, err)
		_, err = f.svc.MarkComplete(ctx, "merchant-1", install.InstallationID)
		require.NoError(t, err)
	}

	rows, err := f.svc.ListInstalled(ctx, "merchant-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byApp := make(map[string]domain.InstalledApp, len(rows))
	for _, row := range rows {
		byApp[row.AppID] = row
	}
	assert.True(t, byApp["com.acme.weather"].UpdateAvailable)
	assert.Equal(t, "1.10.0", byApp["com.acme.weather"].LatestVersion)
	assert.False(t, byApp["com.acme.notes"].UpdateAvailable)
}

func TestListAll_IncludesUninstalled(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0")
	ctx := context.Background()

	install, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "")
	require.NoError(t, err)
	_, err = f.svc.MarkComplete(ctx, "merchant-1", install.InstallationID)
	require.NoError(t, err)
	_, err = f.svc.Uninstall(ctx, "merchant-1", "com.acme.weather")
	require.NoError(t, err)

	installed, err := f.svc.ListInstalled(ctx, "merchant-1")
	require.NoError(t, err)
	assert.Empty(t, installed)

	all, err := f.svc.ListAll(ctx, "merchant-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.StatusUninstalled, all[0].Status)
}

func TestDetails_ReissuesGrantAndTouchesRow(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.0.0")
	ctx := context.Background()

	install, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "")
	require.NoError(t, err)

	before := len(f.issuer.issued)
	details, err := f.svc.Details(ctx, "merchant-1", install.InstallationID)
	require.NoError(t, err)
	require.NotNil(t, details.Grant)
	assert.Len(t, f.issuer.issued, before+1)
	require.NotNil(t, details.Installation.SignedURLGeneratedAt)
}

func TestInstall_DegradedIssuerStillSucceeds(t *testing.T) {
	f := newInstallFixture()
	f.issuer.degraded = true
	f.seedApp("com.acme.weather", "1.0.0")

	result, err := f.svc.Install(context.Background(), "merchant-1", "com.acme.weather", "")

	require.NoError(t, err)
	assert.True(t, result.Grant.Degraded)
	assert.Contains(t, result.Grant.URL, "https://direct.test/")

	row, err := f.ledger.Get(context.Background(), "merchant-1", "com.acme.weather")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInstalling, row.Status, "signing outages never block the ledger")
}

func TestUpdateAvailable_SemanticsNotLexical(t *testing.T) {
	f := newInstallFixture()
	f.seedApp("com.acme.weather", "1.9.0", "1.10.0")
	ctx := context.Background()

	install, err := f.svc.Install(ctx, "merchant-1", "com.acme.weather", "1.9.0")
	require.NoError(t, err)
	_, err = f.svc.MarkComplete(ctx, "merchant-1", install.InstallationID)
	require.NoError(t, err)

	available, err := f.svc.UpdateAvailable(ctx, "merchant-1", "com.acme.weather")
	require.NoError(t, err)
	assert.True(t, available, "1.10.0 is newer than 1.9.0 despite lexical order")
}
