package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/client"
	"github.com/sakif/circuitpad/internal/model"
)

// ============================================================================
// Fake registry
// ============================================================================

type fakeAPI struct {
	mu sync.Mutex

	packages map[string]*model.Package
	releases map[string]*model.PackageRelease // by release ID
	files    map[string]map[string]string     // releaseID -> path -> content

	failPaths   map[string]bool // CreateOrUpdateFile/DeleteFile fail for these
	updateErr   error           // UpdatePackage fails with this
	block       chan struct{}   // CreateOrUpdateFile waits on it when set
	started     chan struct{}   // closed when a blocked upsert begins
	upserts     []string
	deletes     []string
	updateCalls int
	seq         int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		packages:  map[string]*model.Package{},
		releases:  map[string]*model.PackageRelease{},
		files:     map[string]map[string]string{},
		failPaths: map[string]bool{},
	}
}

func (f *fakeAPI) addPackage(owner, creatorID, name string, files map[string]string) *model.Package {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	pkg := &model.Package{
		ID:               fmt.Sprintf("pkg%d", f.seq),
		CreatorAccountID: creatorID,
		OwnerName:        owner,
		UnscopedName:     name,
		Type:             model.PackageTypeBoard,
	}
	rel := &model.PackageRelease{ID: "rel-" + pkg.ID, PackageID: pkg.ID, Version: "0.0.1", IsLatest: true}
	pkg.LatestPackageReleaseID = rel.ID
	f.packages[pkg.ID] = pkg
	f.releases[rel.ID] = rel
	f.files[rel.ID] = map[string]string{}
	for p, c := range files {
		f.files[rel.ID][p] = c
	}
	return pkg
}

func (f *fakeAPI) GetPackage(ctx context.Context, ref client.PackageRef) (*model.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.packages {
		if p.ID == ref.ID || (ref.ID == "" && p.Name() == ref.Name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("package", ref.ID+ref.Name)
}

func (f *fakeAPI) CreatePackage(ctx context.Context, req client.CreatePackageRequest) (*model.Package, error) {
	files := map[string]string{}
	for _, in := range req.Files {
		files[in.FilePath] = in.ContentText
	}
	pkg := f.addPackage("alice", "acct-alice", req.Name, files)
	f.mu.Lock()
	pkg.Type = req.Type
	pkg.IsPrivate = req.IsPrivate
	f.mu.Unlock()
	cp := *pkg
	return &cp, nil
}

func (f *fakeAPI) UpdatePackage(ctx context.Context, req client.UpdatePackageRequest) (*model.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p := f.packages[req.PackageID]
	if req.Name != nil {
		p.UnscopedName = *req.Name
	}
	if req.Type != nil {
		p.Type = *req.Type
	}
	if req.IsPrivate != nil {
		p.IsPrivate = *req.IsPrivate
	}
	cp := *p
	return &cp, nil
}

func (f *fakeAPI) ForkPackage(ctx context.Context, id string) (*model.Package, error) {
	src, err := f.GetPackage(ctx, client.PackageRef{ID: id})
	if err != nil {
		return nil, err
	}
	if src.CreatorAccountID == "acct-bob" {
		return nil, apperror.ValidationFailed("package_id", "cannot fork your own package").
			WithCode(apperror.CodeCannotForkOwnPackage)
	}
	f.mu.Lock()
	files := map[string]string{}
	for p, c := range f.files[src.LatestPackageReleaseID] {
		files[p] = c
	}
	f.mu.Unlock()
	fork := f.addPackage("bob", "acct-bob", src.UnscopedName, files)
	cp := *fork
	return &cp, nil
}

func (f *fakeAPI) GetRelease(ctx context.Context, ref client.ReleaseRef) (*model.PackageRelease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref.ReleaseID != "" {
		if r, ok := f.releases[ref.ReleaseID]; ok {
			cp := *r
			return &cp, nil
		}
		return nil, apperror.NotFound("package_release", ref.ReleaseID)
	}
	p, ok := f.packages[ref.PackageID]
	if !ok {
		return nil, apperror.NotFound("package", ref.PackageID)
	}
	cp := *f.releases[p.LatestPackageReleaseID]
	return &cp, nil
}

func (f *fakeAPI) ListFiles(ctx context.Context, ref client.ReleaseRef) ([]model.PackageFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PackageFile
	for p, c := range f.files[ref.ReleaseID] {
		out = append(out, model.PackageFile{PackageReleaseID: ref.ReleaseID, FilePath: p, ContentText: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

func (f *fakeAPI) CreateOrUpdateFile(ctx context.Context, ref client.ReleaseRef, in client.FileInput) (*model.PackageFile, bool, error) {
	f.mu.Lock()
	block, started := f.block, f.started
	f.mu.Unlock()
	if block != nil {
		close(started)
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPaths[in.FilePath] {
		return nil, false, errors.New("boom")
	}
	f.upserts = append(f.upserts, in.FilePath)
	_, existed := f.files[ref.ReleaseID][in.FilePath]
	f.files[ref.ReleaseID][in.FilePath] = in.ContentText
	return &model.PackageFile{FilePath: in.FilePath}, !existed, nil
}

func (f *fakeAPI) DeleteFile(ctx context.Context, ref client.ReleaseRef, filePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPaths[filePath] {
		return errors.New("boom")
	}
	f.deletes = append(f.deletes, filePath)
	delete(f.files[ref.ReleaseID], filePath)
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loaded(t *testing.T, api *fakeAPI, actor string, files map[string]string) (*Workspace, *clock, *model.Package) {
	t.Helper()
	pkg := api.addPackage("alice", "acct-alice", "usb-c", files)
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	w := New(Options{API: api, ActorID: actor, Logger: discardLogger(), Now: clk.now})
	if err := w.Load(context.Background(), Target{PackageID: pkg.ID}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return w, clk, pkg
}

func content(w *Workspace, p string) (string, bool) {
	for _, f := range w.Files() {
		if f.Path == p {
			return f.Content, true
		}
	}
	return "", false
}

// ============================================================================
// Load
// ============================================================================

func TestLoad_ByIDAndAliases(t *testing.T) {
	api := newFakeAPI()
	pkg := api.addPackage("alice", "acct-alice", "led", map[string]string{
		"index.tsx": "a", "lib/x.tsx": "b",
	})

	tests := []struct {
		name   string
		target Target
	}{
		{"package_id", Target{PackageID: pkg.ID}},
		{"snippet_id", Target{SnippetID: pkg.ID}},
		{"name", Target{Name: "alice/led"}},
		{"package_release_id", Target{PackageReleaseID: pkg.LatestPackageReleaseID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(Options{API: api, Logger: discardLogger()})
			if err := w.Load(context.Background(), tt.target); err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := w.Package(); got == nil || got.ID != pkg.ID {
				t.Fatalf("Package() = %+v", got)
			}
			if w.ReleaseID() != pkg.LatestPackageReleaseID {
				t.Errorf("ReleaseID() = %q", w.ReleaseID())
			}
			if len(w.Files()) != 2 {
				t.Errorf("Files() = %v", w.Files())
			}
			if w.Current() != "index.tsx" {
				t.Errorf("Current() = %q, want index.tsx", w.Current())
			}
			if w.State() != Clean {
				t.Errorf("State() = %v, want clean", w.State())
			}
		})
	}
}

func TestLoad_FilePathSelectsFile(t *testing.T) {
	api := newFakeAPI()
	pkg := api.addPackage("alice", "acct-alice", "led", map[string]string{"index.tsx": "a", "lib/x.tsx": "b"})
	w := New(Options{API: api, Logger: discardLogger()})

	if err := w.Load(context.Background(), Target{PackageID: pkg.ID, FilePath: "lib/x.tsx"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if w.Current() != "lib/x.tsx" {
		t.Errorf("Current() = %q", w.Current())
	}
}

func TestLoad_Template(t *testing.T) {
	w := New(Options{API: newFakeAPI(), Logger: discardLogger()})

	if err := w.Load(context.Background(), Target{Template: "blank-footprint"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if w.Package() != nil {
		t.Error("template workspace should have no package")
	}
	if w.State() != Dirty {
		t.Errorf("State() = %v, want dirty", w.State())
	}
	if _, err := w.Save(context.Background()); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Save() on template error = %v, want validation", err)
	}

	err := w.Load(context.Background(), Target{Template: "nope"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("unknown template error = %v", err)
	}
	if err := w.Load(context.Background(), Target{}); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("empty target error = %v", err)
	}
}

func TestPublish_Template(t *testing.T) {
	api := newFakeAPI()
	w := New(Options{API: api, ActorID: "acct-alice", Logger: discardLogger()})
	if err := w.Load(context.Background(), Target{Template: "blank-footprint"}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	pkg, err := w.Publish(context.Background(), "my-fp", false)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if pkg.Type != model.PackageTypeFootprint {
		t.Errorf("Type = %q, want footprint", pkg.Type)
	}
	if w.State() != Clean {
		t.Errorf("State() after publish = %v", w.State())
	}
	if _, err := w.Publish(context.Background(), "again", false); err == nil {
		t.Error("expected publishing twice to fail")
	}
}

// ============================================================================
// Dirty tracking
// ============================================================================

func TestState_Transitions(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{"index.tsx": "a"})

	steps := []struct {
		name string
		do   func() error
		want State
	}{
		{"edit", func() error { return w.Edit("index.tsx", "b") }, Dirty},
		{"edit back", func() error { return w.Edit("index.tsx", "a") }, Clean},
		{"create", func() error { return w.Create("lib/y.tsx", "y") }, Dirty},
		{"delete created", func() error { return w.Delete("lib/y.tsx") }, Clean},
		{"rename", func() error { return w.RenameFile("index.tsx", "main.tsx") }, Dirty},
		{"rename back", func() error { return w.RenameFile("main.tsx", "index.tsx") }, Clean},
		{"delete original", func() error { return w.Delete("index.tsx") }, Dirty},
	}
	for _, s := range steps {
		if err := s.do(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if got := w.State(); got != s.want {
			t.Fatalf("after %s: State() = %v, want %v", s.name, got, s.want)
		}
	}
}

func TestCreate_Validation(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{"index.tsx": "a"})

	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"absolute", "/etc/passwd"},
		{"double slash", "a//b.tsx"},
		{"dot segment", "a/./b.tsx"},
		{"trailing slash", "lib/"},
		{"parent", "../x.tsx"},
		{"parent inside", "lib/../../x.tsx"},
		{"duplicate", "index.tsx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.Create(tt.path, ""); !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Create(%q) error = %v, want validation", tt.path, err)
			}
		})
	}

	if err := w.Edit("missing.tsx", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Edit missing error = %v", err)
	}
	if err := w.RenameFile("index.tsx", ""); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("RenameFile to empty error = %v", err)
	}
	if err := w.RenameFile("index.tsx", "../index.tsx"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("RenameFile outside the package error = %v", err)
	}
	if err := w.Create("lib/pins.ts", ""); err != nil {
		t.Errorf("Create nested clean path error = %v", err)
	}
}

func TestHiddenFiles_IgnoredBySaveAndDiff(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{
		"index.tsx":         "a",
		"package-lock.json": "{}",
		".env":              "SECRET=1",
	})

	// Hidden changes alone never make the workspace dirty.
	if err := w.Edit(".env", "SECRET=2"); err != nil {
		t.Fatal(err)
	}
	if err := w.Create("node_modules/react/index.js", "x"); err != nil {
		t.Fatal(err)
	}
	if err := w.Delete("package-lock.json"); err != nil {
		t.Fatal(err)
	}
	if w.State() != Clean {
		t.Fatalf("State() = %v, want clean with only hidden changes", w.State())
	}

	// And they are not sent when something visible changes.
	if err := w.Edit("index.tsx", "b"); err != nil {
		t.Fatal(err)
	}
	res, err := w.Save(context.Background())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(res.Updated) != 1 || res.Updated[0] != "index.tsx" || len(res.Deleted) != 0 {
		t.Errorf("Save() = %+v", res)
	}
	if len(api.upserts) != 1 || len(api.deletes) != 0 {
		t.Errorf("upserts = %v, deletes = %v", api.upserts, api.deletes)
	}
}

func TestHidden(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"index.tsx", false},
		{"lib/part.tsx", false},
		{"node_modules/react/index.js", true},
		{"lib/node_modules/x.js", true},
		{".git/HEAD", true},
		{"dist/bundle.js", true},
		{".env", true},
		{".env.local", true},
		{".env.example", false},
		{"package-lock.json", true},
		{"yarn.lock", true},
		{"pnpm-lock.yaml", true},
		{"bun.lockb", true},
		{"sub/.DS_Store", true},
		{"package.json", false},
		{"distance.tsx", false},
	}
	for _, tt := range tests {
		if got := Hidden(tt.path); got != tt.want {
			t.Errorf("Hidden(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

// ============================================================================
// Save
// ============================================================================

func TestSave_UpsertsAndDeletes(t *testing.T) {
	api := newFakeAPI()
	var hooked []SaveResult
	w, clk, pkg := loaded(t, api, "acct-alice", map[string]string{"index.tsx": "a", "old.tsx": "o"})
	w.onSaved = func(r SaveResult) { hooked = append(hooked, r) }

	_ = w.Edit("index.tsx", "a2")
	_ = w.Create("new.tsx", "n")
	_ = w.Delete("old.tsx")

	res, err := w.Save(context.Background())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.Count() != 3 {
		t.Errorf("Count() = %d, want 3 (%+v)", res.Count(), res)
	}
	if len(hooked) != 1 {
		t.Errorf("OnSaved ran %d times, want 1", len(hooked))
	}

	stored := api.files[pkg.LatestPackageReleaseID]
	if stored["index.tsx"] != "a2" || stored["new.tsx"] != "n" {
		t.Errorf("stored files = %v", stored)
	}
	if _, ok := stored["old.tsx"]; ok {
		t.Error("old.tsx was not deleted")
	}

	// Clean right after the save and still clean once the debounce is over.
	if w.HasUnsavedChanges() {
		t.Error("HasUnsavedChanges() = true right after save")
	}
	clk.advance(2 * time.Second)
	if w.HasUnsavedChanges() {
		t.Error("HasUnsavedChanges() = true after debounce with no edits")
	}

	// The next tracked edit flips it back.
	_ = w.Edit("new.tsx", "n2")
	if !w.HasUnsavedChanges() {
		t.Error("HasUnsavedChanges() = false after a new edit")
	}
}

func TestSave_NothingChangedSkipsHook(t *testing.T) {
	api := newFakeAPI()
	called := false
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{"index.tsx": "a"})
	w.onSaved = func(SaveResult) { called = true }

	res, err := w.Save(context.Background())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.Count() != 0 || called {
		t.Errorf("Count() = %d, hook called = %v", res.Count(), called)
	}
}

func TestSave_PartialFailure(t *testing.T) {
	api := newFakeAPI()
	w, clk, _ := loaded(t, api, "acct-alice", map[string]string{"a.tsx": "1", "b.tsx": "1", "c.tsx": "1"})
	api.failPaths["b.tsx"] = true

	_ = w.Edit("a.tsx", "2")
	_ = w.Edit("b.tsx", "2")
	_ = w.Delete("c.tsx")

	res, err := w.Save(context.Background())
	if err == nil {
		t.Fatal("expected an error for the failed file")
	}
	if len(res.Failed) != 1 || res.Failed[0].Path != "b.tsx" || res.Failed[0].Op != "update" {
		t.Errorf("Failed = %+v", res.Failed)
	}
	if res.Count() != 2 {
		t.Errorf("Count() = %d, want 2", res.Count())
	}

	// Only b.tsx is still pending once the debounce is over.
	clk.advance(2 * time.Second)
	changed, removed := w.Changes()
	if len(changed) != 1 || changed[0] != "b.tsx" || len(removed) != 0 {
		t.Errorf("Changes() = %v, %v", changed, removed)
	}
	if w.State() != Dirty {
		t.Errorf("State() = %v, want dirty", w.State())
	}
}

func TestSave_AllFailedLeavesDirty(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{"a.tsx": "1"})
	api.failPaths["a.tsx"] = true
	_ = w.Edit("a.tsx", "2")

	res, err := w.Save(context.Background())
	if err == nil || res.Count() != 0 {
		t.Fatalf("Save() = %+v, %v", res, err)
	}
	if w.State() != Dirty {
		t.Errorf("State() = %v, want dirty", w.State())
	}
}

func TestSave_SecondSaveWhileSaving(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{"a.tsx": "1"})
	_ = w.Edit("a.tsx", "2")

	api.block = make(chan struct{})
	api.started = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := w.Save(context.Background())
		done <- err
	}()
	<-api.started

	if w.State() != Saving {
		t.Errorf("State() = %v, want saving", w.State())
	}
	if w.HasUnsavedChanges() {
		t.Error("HasUnsavedChanges() should be false while saving")
	}
	if _, err := w.Save(context.Background()); !errors.Is(err, ErrSaveInProgress) {
		t.Errorf("second Save() error = %v, want ErrSaveInProgress", err)
	}
	if err := w.Discard(); !errors.Is(err, ErrSaveInProgress) {
		t.Errorf("Discard() during save error = %v", err)
	}

	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if w.State() != Clean {
		t.Errorf("State() after save = %v", w.State())
	}
}

func TestSave_EditDuringSaveStaysVisible(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{"a.tsx": "1"})
	_ = w.Edit("a.tsx", "2")

	api.block = make(chan struct{})
	api.started = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := w.Save(context.Background())
		done <- err
	}()
	<-api.started

	if err := w.Edit("a.tsx", "3"); err != nil {
		t.Fatalf("Edit during save: %v", err)
	}
	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("Save: %v", err)
	}

	if w.State() != Dirty {
		t.Errorf("State() = %v, want dirty", w.State())
	}
	if !w.HasUnsavedChanges() {
		t.Error("HasUnsavedChanges() = false, want the edit made during the save to show at once")
	}
	if got := w.Snapshot().LastSavedAt; !got.IsZero() {
		t.Errorf("LastSavedAt = %v, want zero", got)
	}
}

// ============================================================================
// Discard
// ============================================================================

func TestDiscard_RestoresSnapshot(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{"index.tsx": "a", "bin.dat": "\x00\xff\x01"})
	before := w.Files()

	_ = w.Edit("index.tsx", "changed")
	_ = w.Delete("bin.dat")
	_ = w.Create("extra.tsx", "e")

	if err := w.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	after := w.Files()
	if len(after) != len(before) {
		t.Fatalf("Files() = %v, want %v", after, before)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("file %d = %+v, want %+v", i, after[i], before[i])
		}
	}
	if w.State() != Clean {
		t.Errorf("State() = %v", w.State())
	}
}

func TestDiscard_ResetsDebounce(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{"index.tsx": "a"})
	_ = w.Edit("index.tsx", "b")
	if _, err := w.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Discard(); err != nil {
		t.Fatal(err)
	}
	if !w.Snapshot().LastSavedAt.IsZero() {
		t.Error("Discard should reset the last-saved timestamp")
	}
	if c, _ := content(w, "index.tsx"); c != "b" {
		t.Errorf("content = %q, want the saved content", c)
	}
}

// ============================================================================
// Fork / Rename / toggles
// ============================================================================

func TestFork_NonOwnerSwitchesToFork(t *testing.T) {
	api := newFakeAPI()
	w, _, original := loaded(t, api, "acct-bob", map[string]string{"index.tsx": "a"})
	_ = w.Edit("index.tsx", "bob's change")

	fork, err := w.Fork(context.Background())
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if w.Package().ID != fork.ID || fork.ID == original.ID {
		t.Errorf("workspace package = %q, fork = %q, original = %q", w.Package().ID, fork.ID, original.ID)
	}
	if c, _ := content(w, "index.tsx"); c != "bob's change" {
		t.Errorf("local edit lost: %q", c)
	}
	if w.State() != Dirty {
		t.Errorf("State() = %v, want dirty against the fork", w.State())
	}
	if api.files[original.LatestPackageReleaseID]["index.tsx"] != "a" {
		t.Error("original package was modified")
	}
}

func TestFork_OwnPackageRejected(t *testing.T) {
	api := newFakeAPI()
	pkg := api.addPackage("bob", "acct-bob", "mine", map[string]string{"index.tsx": "a"})
	w := New(Options{API: api, ActorID: "acct-bob", Logger: discardLogger()})
	if err := w.Load(context.Background(), Target{PackageID: pkg.ID}); err != nil {
		t.Fatal(err)
	}

	_, err := w.Fork(context.Background())
	if !apperror.HasCode(err, apperror.CodeCannotForkOwnPackage) {
		t.Fatalf("Fork() error = %v, want cannot_fork_own_package", err)
	}
	if w.Package().ID != pkg.ID {
		t.Error("workspace switched packages after a rejected fork")
	}
}

func TestFork_RequiresLogin(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "", map[string]string{"index.tsx": "a"})
	if _, err := w.Fork(context.Background()); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Fork() error = %v, want unauthorized", err)
	}
}

func TestRename(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{"index.tsx": "a"})

	changed, err := w.Rename(context.Background(), "  usb-c  ")
	if err != nil || changed {
		t.Fatalf("Rename(same) = %v, %v", changed, err)
	}
	if api.updateCalls != 0 {
		t.Errorf("unchanged rename sent %d requests", api.updateCalls)
	}

	changed, err = w.Rename(context.Background(), "usb-c-v2")
	if err != nil || !changed {
		t.Fatalf("Rename = %v, %v", changed, err)
	}
	if w.Package().UnscopedName != "usb-c-v2" {
		t.Errorf("UnscopedName = %q", w.Package().UnscopedName)
	}
	if _, err := w.Rename(context.Background(), " "); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("blank rename error = %v", err)
	}
}

func TestSetType_AndSetPrivate(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{"index.tsx": "a"})

	if err := w.SetType(context.Background(), model.PackageTypePackage); err != nil {
		t.Fatalf("SetType: %v", err)
	}
	if err := w.SetPrivate(context.Background(), true); err != nil {
		t.Fatalf("SetPrivate: %v", err)
	}
	pkg := w.Package()
	if pkg.Type != model.PackageTypePackage || !pkg.IsPrivate {
		t.Errorf("package = %+v", pkg)
	}
	if err := w.SetType(context.Background(), "gadget"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("invalid type error = %v", err)
	}
}

func TestSetType_RollsBackOnFailure(t *testing.T) {
	api := newFakeAPI()
	w, _, _ := loaded(t, api, "acct-alice", map[string]string{"index.tsx": "a"})
	api.updateErr = apperror.Forbidden("not yours")

	err := w.SetPrivate(context.Background(), true)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("SetPrivate() error = %v", err)
	}
	if w.Package().IsPrivate {
		t.Error("visibility not rolled back")
	}

	err = w.SetType(context.Background(), model.PackageTypeFootprint)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("SetType() error = %v", err)
	}
	if w.Package().Type != model.PackageTypeBoard {
		t.Errorf("Type = %q, want rolled back to board", w.Package().Type)
	}
}

// ============================================================================
// Snapshot / Restore
// ============================================================================

func TestSnapshotRestore(t *testing.T) {
	api := newFakeAPI()
	w, clk, _ := loaded(t, api, "acct-alice", map[string]string{"index.tsx": "a"})
	snap := w.Snapshot()

	restored := New(Options{API: api, ActorID: "acct-alice", Logger: discardLogger(), Now: clk.now})
	restored.Restore(snap, []File{{Path: "index.tsx", Content: "edited on disk"}})

	if restored.State() != Dirty {
		t.Errorf("State() = %v, want dirty", restored.State())
	}
	if restored.ReleaseID() != w.ReleaseID() {
		t.Errorf("ReleaseID() = %q", restored.ReleaseID())
	}
	if _, err := restored.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
}
