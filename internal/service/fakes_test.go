package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/auth"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// =========================================================================
// IN-MEMORY STORE
// =========================================================================
//
// fakeStore implements every repository interface with maps. It returns
// copies so tests cannot mutate stored state by accident, and it keeps the
// invariants the sqlite implementation keeps (unique names, single latest
// release, build mirroring) so service tests see realistic behavior.
type fakeStore struct {
	mu       sync.Mutex
	seq      int
	clock    time.Time
	accounts map[string]model.Account
	orgs     map[string]model.Org
	packages map[string]model.Package
	stars    map[string]map[string]bool // package → account
	releases map[string]model.PackageRelease
	builds   map[string]model.PackageBuild
	files    map[string]model.PackageFile
	domains  map[string]model.PackageDomain
}

var (
	_ repository.AccountRepository = (*fakeStore)(nil)
	_ repository.OrgRepository     = (*fakeStore)(nil)
	_ repository.PackageRepository = (*fakeStore)(nil)
	_ repository.ReleaseRepository = (*fakeStore)(nil)
	_ repository.BuildRepository   = (*fakeStore)(nil)
	_ repository.FileRepository    = (*fakeStore)(nil)
	_ repository.DomainRepository  = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		accounts: map[string]model.Account{},
		orgs:     map[string]model.Org{},
		packages: map[string]model.Package{},
		stars:    map[string]map[string]bool{},
		releases: map[string]model.PackageRelease{},
		builds:   map[string]model.PackageBuild{},
		files:    map[string]model.PackageFile{},
		domains:  map[string]model.PackageDomain{},
	}
}

// tick returns a strictly increasing timestamp.
func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) id(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

// accounts

func (f *fakeStore) CreateAccount(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.accounts {
		if existing.Handle == a.Handle {
			return apperror.Conflict("account", a.Handle)
		}
	}
	a.ID = f.id("acct")
	a.CreatedAt = f.tick()
	a.UpdatedAt = a.CreatedAt
	f.accounts[a.ID] = *a
	return nil
}

func (f *fakeStore) UpsertGitHubAccount(ctx context.Context, a *model.Account) error {
	f.mu.Lock()
	for id, existing := range f.accounts {
		if existing.GitHubID == a.GitHubID {
			existing.Email, existing.AvatarURL = a.Email, a.AvatarURL
			f.accounts[id] = existing
			*a = existing
			f.mu.Unlock()
			return nil
		}
	}
	f.mu.Unlock()
	return f.CreateAccount(ctx, a)
}

func (f *fakeStore) GetAccountByID(_ context.Context, id string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, apperror.NotFound("account", id)
	}
	return &a, nil
}

func (f *fakeStore) GetAccountByHandle(_ context.Context, handle string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Handle == handle {
			return &a, nil
		}
	}
	return nil, apperror.NotFound("account", handle)
}

// orgs

func (f *fakeStore) CreateOrg(_ context.Context, o *model.Org) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.orgs {
		if existing.Name == o.Name {
			return apperror.Conflict("org", o.Name)
		}
	}
	o.ID = f.id("org")
	o.CreatedAt = f.tick()
	o.MemberAccountIDs = []string{o.OwnerAccountID}
	stored := *o
	stored.MemberAccountIDs = append([]string(nil), o.MemberAccountIDs...)
	f.orgs[o.ID] = stored
	return nil
}

func (f *fakeStore) GetOrgByID(_ context.Context, id string) (*model.Org, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orgs[id]
	if !ok {
		return nil, apperror.NotFound("org", id)
	}
	o.MemberAccountIDs = append([]string(nil), o.MemberAccountIDs...)
	return &o, nil
}

func (f *fakeStore) GetOrgByName(ctx context.Context, name string) (*model.Org, error) {
	f.mu.Lock()
	var id string
	for _, o := range f.orgs {
		if o.Name == name {
			id = o.ID
		}
	}
	f.mu.Unlock()
	if id == "" {
		return nil, apperror.NotFound("org", name)
	}
	return f.GetOrgByID(ctx, id)
}

func (f *fakeStore) AddOrgMember(_ context.Context, orgID, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orgs[orgID]
	if !ok {
		return apperror.NotFound("org", orgID)
	}
	if !o.HasMember(accountID) {
		o.MemberAccountIDs = append(append([]string(nil), o.MemberAccountIDs...), accountID)
		f.orgs[orgID] = o
	}
	return nil
}

// packages

func (f *fakeStore) CreatePackage(_ context.Context, p *model.Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.packages {
		if existing.OwnerName == p.OwnerName && existing.UnscopedName == p.UnscopedName {
			return apperror.Conflict("package", p.Name())
		}
	}
	p.ID = f.id("pkg")
	p.CreatedAt = f.tick()
	p.UpdatedAt = p.CreatedAt
	f.packages[p.ID] = *p
	return nil
}

func (f *fakeStore) GetPackageByID(_ context.Context, id string) (*model.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.packages[id]
	if !ok {
		return nil, apperror.NotFound("package", id)
	}
	return &p, nil
}

func (f *fakeStore) GetPackageByName(_ context.Context, owner, name string) (*model.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.packages {
		if p.OwnerName == owner && p.UnscopedName == name {
			return &p, nil
		}
	}
	return nil, apperror.NotFound("package", owner+"/"+name)
}

func (f *fakeStore) ListPackages(_ context.Context, filter repository.PackageFilter) ([]model.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Package
	q := strings.ToLower(filter.Query)
	for _, p := range f.packages {
		if p.IsPrivate && p.CreatorAccountID != filter.ViewerAccountID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.UnscopedName+" "+p.Description+" "+p.OwnerName), q) {
			continue
		}
		if filter.OwnerName != "" && p.OwnerName != filter.OwnerName {
			continue
		}
		if filter.StarredBy != "" && !f.stars[p.ID][filter.StarredBy] {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := repository.ClampLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) UpdatePackage(_ context.Context, p *model.Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.packages[p.ID]
	if !ok {
		return apperror.NotFound("package", p.ID)
	}
	for _, other := range f.packages {
		if other.ID != p.ID && other.OwnerName == p.OwnerName && other.UnscopedName == p.UnscopedName {
			return apperror.Conflict("package", p.Name())
		}
	}
	p.StarCount = existing.StarCount
	p.LatestPackageReleaseID, p.LatestVersion = existing.LatestPackageReleaseID, existing.LatestVersion
	p.UpdatedAt = f.tick()
	f.packages[p.ID] = *p
	return nil
}

func (f *fakeStore) DeletePackage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.packages[id]; !ok {
		return apperror.NotFound("package", id)
	}
	delete(f.packages, id)
	return nil
}

func (f *fakeStore) AddStar(_ context.Context, packageID, accountID string) error {
	return f.setStar(packageID, accountID, true)
}

func (f *fakeStore) RemoveStar(_ context.Context, packageID, accountID string) error {
	return f.setStar(packageID, accountID, false)
}

func (f *fakeStore) setStar(packageID, accountID string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.packages[packageID]
	if !ok {
		return apperror.NotFound("package", packageID)
	}
	if f.stars[packageID] == nil {
		f.stars[packageID] = map[string]bool{}
	}
	if on {
		f.stars[packageID][accountID] = true
	} else {
		delete(f.stars[packageID], accountID)
	}
	p.StarCount = len(f.stars[packageID])
	f.packages[packageID] = p
	return nil
}

// releases and builds

func (f *fakeStore) CreateRelease(_ context.Context, r *model.PackageRelease) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.releases {
		if existing.PackageID == r.PackageID && existing.Version == r.Version {
			return apperror.Conflict("package_release", r.Version)
		}
	}
	r.ID = f.id("rel")
	r.CreatedAt = f.tick()
	r.UpdatedAt = r.CreatedAt
	if r.BuildStatus == "" {
		r.BuildStatus = model.BuildPending
	}
	f.releases[r.ID] = *r
	if r.IsLatest {
		f.markLatest(r.PackageID, r.ID)
	}
	return nil
}

func (f *fakeStore) markLatest(packageID, releaseID string) {
	for id, r := range f.releases {
		if r.PackageID == packageID {
			r.IsLatest = id == releaseID
			f.releases[id] = r
		}
	}
	p := f.packages[packageID]
	p.LatestPackageReleaseID = releaseID
	p.LatestVersion = f.releases[releaseID].Version
	f.packages[packageID] = p
}

func (f *fakeStore) GetReleaseByID(_ context.Context, id string) (*model.PackageRelease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.releases[id]
	if !ok {
		return nil, apperror.NotFound("package_release", id)
	}
	return &r, nil
}

func (f *fakeStore) GetReleaseByVersion(_ context.Context, packageID, version string) (*model.PackageRelease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.releases {
		if r.PackageID == packageID && r.Version == version {
			return &r, nil
		}
	}
	return nil, apperror.NotFound("package_release", packageID+"@"+version)
}

func (f *fakeStore) GetLatestRelease(ctx context.Context, packageID string) (*model.PackageRelease, error) {
	releases, _ := f.ListReleases(ctx, packageID)
	if len(releases) == 0 {
		return nil, apperror.NotFound("package_release", packageID)
	}
	for _, r := range releases {
		if r.IsLatest {
			return &r, nil
		}
	}
	return &releases[0], nil
}

func (f *fakeStore) ListReleases(_ context.Context, packageID string) ([]model.PackageRelease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PackageRelease
	for _, r := range f.releases {
		if r.PackageID == packageID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdateRelease(_ context.Context, r *model.PackageRelease) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.releases[r.ID]
	if !ok {
		return apperror.NotFound("package_release", r.ID)
	}
	existing.IsLocked, existing.IsLatest = r.IsLocked, r.IsLatest
	f.releases[r.ID] = existing
	if r.IsLatest {
		f.markLatest(r.PackageID, r.ID)
	}
	return nil
}

func (f *fakeStore) ListStaleReleases(_ context.Context, before time.Time) ([]model.PackageRelease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PackageRelease
	for _, r := range f.releases {
		if r.BuildStatus == model.BuildPending && r.UpdatedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateBuild(_ context.Context, b *model.PackageBuild) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.releases[b.PackageReleaseID]
	if !ok {
		return apperror.NotFound("package_release", b.PackageReleaseID)
	}
	b.ID = f.id("build")
	b.CreatedAt = f.tick()
	b.Status = model.BuildPending
	f.builds[b.ID] = *b
	r.LatestPackageBuildID = b.ID
	r.BuildStatus = model.BuildPending
	r.BuildStartedAt, r.BuildCompletedAt, r.BuildLogs = nil, nil, ""
	r.UpdatedAt = b.CreatedAt
	f.releases[r.ID] = r
	return nil
}

func (f *fakeStore) GetBuildByID(_ context.Context, id string) (*model.PackageBuild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok {
		return nil, apperror.NotFound("package_build", id)
	}
	return &b, nil
}

func (f *fakeStore) ListBuilds(_ context.Context, releaseID string) ([]model.PackageBuild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PackageBuild
	for _, b := range f.builds {
		if b.PackageReleaseID == releaseID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) UpdateBuild(_ context.Context, b *model.PackageBuild) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.builds[b.ID]; !ok {
		return apperror.NotFound("package_build", b.ID)
	}
	f.builds[b.ID] = *b
	if r, ok := f.releases[b.PackageReleaseID]; ok && r.LatestPackageBuildID == b.ID {
		r.BuildStatus, r.BuildLogs = b.Status, b.Logs
		r.BuildStartedAt, r.BuildCompletedAt = b.StartedAt, b.CompletedAt
		r.UpdatedAt = f.tick()
		f.releases[r.ID] = r
	}
	return nil
}

// files

func fileKey(releaseID, path string) string { return releaseID + "\x00" + path }

func (f *fakeStore) CreateFile(_ context.Context, file *model.PackageFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fileKey(file.PackageReleaseID, file.FilePath)
	if _, ok := f.files[key]; ok {
		return apperror.Conflict("package_file", file.FilePath)
	}
	file.ID = f.id("file")
	file.CreatedAt = f.tick()
	file.UpdatedAt = file.CreatedAt
	f.files[key] = *file
	return nil
}

func (f *fakeStore) UpsertFile(ctx context.Context, file *model.PackageFile) (bool, error) {
	f.mu.Lock()
	key := fileKey(file.PackageReleaseID, file.FilePath)
	if existing, ok := f.files[key]; ok {
		file.ID, file.CreatedAt = existing.ID, existing.CreatedAt
		file.UpdatedAt = f.tick()
		f.files[key] = *file
		f.mu.Unlock()
		return false, nil
	}
	f.mu.Unlock()
	return true, f.CreateFile(ctx, file)
}

func (f *fakeStore) GetFileByID(_ context.Context, id string) (*model.PackageFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range f.files {
		if file.ID == id {
			return &file, nil
		}
	}
	return nil, apperror.NotFound("package_file", id)
}

func (f *fakeStore) GetFileByPath(_ context.Context, releaseID, path string) (*model.PackageFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[fileKey(releaseID, path)]
	if !ok {
		return nil, apperror.NotFound("package_file", path)
	}
	return &file, nil
}

func (f *fakeStore) ListFiles(_ context.Context, releaseID string) ([]model.PackageFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PackageFile
	for _, file := range f.files {
		if file.PackageReleaseID == releaseID {
			out = append(out, file)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

func (f *fakeStore) DeleteFile(_ context.Context, releaseID, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fileKey(releaseID, path)
	if _, ok := f.files[key]; !ok {
		return apperror.NotFound("package_file", path)
	}
	delete(f.files, key)
	return nil
}

// domains

func (f *fakeStore) CreateDomain(_ context.Context, d *model.PackageDomain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.domains {
		if existing.FullyQualifiedDomainName == d.FullyQualifiedDomainName {
			return apperror.Conflict("package_domain", d.FullyQualifiedDomainName)
		}
	}
	d.ID = f.id("dom")
	if d.CreatedAt.IsZero() {
		d.CreatedAt = f.tick()
	}
	d.UpdatedAt = d.CreatedAt
	f.domains[d.ID] = *d
	return nil
}

func (f *fakeStore) GetDomainByID(_ context.Context, id string) (*model.PackageDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.domains[id]
	if !ok {
		return nil, apperror.NotFound("package_domain", id)
	}
	return &d, nil
}

func (f *fakeStore) UpdateDomain(_ context.Context, d *model.PackageDomain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.domains[d.ID]; !ok {
		return apperror.NotFound("package_domain", d.ID)
	}
	d.UpdatedAt = f.tick()
	f.domains[d.ID] = *d
	return nil
}

func (f *fakeStore) ListDomains(_ context.Context, filter repository.DomainFilter) ([]model.PackageDomain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PackageDomain
	for _, d := range f.domains {
		if filter.PackageID != "" && d.PackageID != filter.PackageID {
			continue
		}
		if filter.PackageReleaseID != "" && d.PackageReleaseID != filter.PackageReleaseID {
			continue
		}
		if filter.PackageBuildID != "" && d.PackageBuildID != filter.PackageBuildID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := repository.ClampLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =========================================================================
// SERVICE FIXTURE
// =========================================================================

// recordingScheduler stands in for BuildService where only the scheduling
// side effect matters.
type recordingScheduler struct {
	store     *fakeStore
	scheduled []string
	err       error
}

func (r *recordingScheduler) Schedule(ctx context.Context, releaseID string) (*model.PackageBuild, error) {
	if r.err != nil {
		return nil, r.err
	}
	b := &model.PackageBuild{PackageReleaseID: releaseID}
	if err := r.store.CreateBuild(ctx, b); err != nil {
		return nil, err
	}
	r.scheduled = append(r.scheduled, releaseID)
	return b, nil
}

type fixture struct {
	store     *fakeStore
	scheduler *recordingScheduler
	accounts  *AccountService
	orgs      *OrgService
	packages  *PackageService
	files     *FileService
	releases  *ReleaseService
	domains   *DomainService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	sched := &recordingScheduler{store: store}
	logger := discardLogger()

	tokens, err := auth.NewTokenService("service-test-secret-32-chars!!!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	return &fixture{
		store:     store,
		scheduler: sched,
		accounts:  NewAccountService(store, tokens, auth.NewPasswordServiceWithCost(bcrypt.MinCost), logger),
		orgs:      NewOrgService(store, store, logger),
		packages:  NewPackageService(store, store, store, store, store, sched, logger),
		files:     NewFileService(store, store, store, store, logger),
		releases:  NewReleaseService(store, store, store, store, sched, logger),
		domains:   NewDomainService(store, store, store, store, logger),
	}
}

func (fx *fixture) account(t *testing.T, handle string) *model.Account {
	t.Helper()
	a := &model.Account{Handle: handle}
	if err := fx.store.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("creating account: %v", err)
	}
	return a
}

func (fx *fixture) pkg(t *testing.T, owner *model.Account, name string, files ...FileInput) *model.Package {
	t.Helper()
	p, err := fx.packages.Create(context.Background(), owner.ID, CreatePackageInput{Name: name, Files: files})
	if err != nil {
		t.Fatalf("creating package: %v", err)
	}
	return p
}
