// Package workspace tracks the editable files of one package and drives the
// save, discard and fork workflow against the registry.
//
// A workspace compares its current files with the snapshot taken when the
// package was loaded or last saved. Hidden files (see Hidden) take no part in
// the comparison and are never written or deleted.
//
// State machine:
//
//	Clean  --edit/create/delete/rename--> Dirty
//	Dirty  --Save-->                      Saving
//	Saving --some change stored-->        Clean (or Dirty if edits raced the save)
//	Saving --nothing stored-->            Dirty
//	Dirty  --Discard-->                   Clean
package workspace

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/client"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/optimistic"
)

// saveDebounce is how long after a save external file changes are ignored.
const saveDebounce = time.Second

// ErrSaveInProgress is returned when Save or Discard is called while a save
// is still running.
var ErrSaveInProgress = errors.New("workspace: save already in progress")

// State is where the workspace is in the save cycle.
type State int

const (
	Clean State = iota
	Dirty
	Saving
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Saving:
		return "saving"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// File is one editable file. Content may hold binary data; Save sends
// anything that is not valid UTF-8 as base64.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// API is the part of the registry client the workspace uses.
// *client.Client implements it.
type API interface {
	GetPackage(ctx context.Context, ref client.PackageRef) (*model.Package, error)
	CreatePackage(ctx context.Context, req client.CreatePackageRequest) (*model.Package, error)
	UpdatePackage(ctx context.Context, req client.UpdatePackageRequest) (*model.Package, error)
	ForkPackage(ctx context.Context, id string) (*model.Package, error)
	GetRelease(ctx context.Context, ref client.ReleaseRef) (*model.PackageRelease, error)
	ListFiles(ctx context.Context, ref client.ReleaseRef) ([]model.PackageFile, error)
	CreateOrUpdateFile(ctx context.Context, ref client.ReleaseRef, in client.FileInput) (*model.PackageFile, bool, error)
	DeleteFile(ctx context.Context, ref client.ReleaseRef, filePath string) error
}

var _ API = (*client.Client)(nil)

// Target names what Load opens. The first non-empty of PackageReleaseID,
// PackageID (or its alias SnippetID) and Name wins; Template is used only
// when none of them is set.
type Target struct {
	PackageID        string
	SnippetID        string
	Name             string
	PackageReleaseID string
	Version          string
	FilePath         string
	Template         string
}

// FileError is one file that Save could not store.
type FileError struct {
	Path string
	Op   string // "update" or "delete"
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// SaveResult reports what a Save stored. Failed files are not retried and
// nothing that succeeded is rolled back.
type SaveResult struct {
	Updated []string
	Deleted []string
	Failed  []FileError
}

// Count is the number of changes the server accepted.
func (r SaveResult) Count() int {
	return len(r.Updated) + len(r.Deleted)
}

// Options configure a Workspace.
type Options struct {
	API API

	// ActorID is the account doing the editing; empty when logged out.
	ActorID string

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// OnSaved runs after a save that stored at least one change.
	OnSaved func(SaveResult)
}

// Workspace is safe for concurrent use.
type Workspace struct {
	api     API
	actorID string
	logger  *slog.Logger
	now     func() time.Time
	onSaved func(SaveResult)

	mu          sync.Mutex
	pkg         *model.Package
	newType     model.PackageType // type Publish uses for a template workspace
	releaseID   string
	files       []File
	initial     []File
	current     string
	lastSavedAt time.Time
	saving      bool
	// editedWhileSaving keeps a finishing save from restarting the debounce
	// over an edit made while its requests were in flight.
	editedWhileSaving bool
}

func New(opts Options) *Workspace {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Workspace{
		api:     opts.API,
		actorID: opts.ActorID,
		logger:  opts.Logger,
		now:     opts.Now,
		onSaved: opts.OnSaved,
	}
}

// Load replaces the workspace contents with the files the target names.
func (w *Workspace) Load(ctx context.Context, t Target) error {
	packageID := t.PackageID
	if packageID == "" {
		packageID = t.SnippetID
	}

	if t.PackageReleaseID == "" && packageID == "" && t.Name == "" {
		if t.Template == "" {
			return apperror.ValidationFailed("package_id", "package_id, package_release_id, name or template is required")
		}
		return w.loadTemplate(t.Template)
	}

	var (
		pkg     *model.Package
		release *model.PackageRelease
		err     error
	)
	if t.PackageReleaseID != "" {
		release, err = w.api.GetRelease(ctx, client.ReleaseRef{ReleaseID: t.PackageReleaseID})
		if err != nil {
			return fmt.Errorf("loading release: %w", err)
		}
		packageID = release.PackageID
	}

	pkg, err = w.api.GetPackage(ctx, client.PackageRef{ID: packageID, Name: t.Name})
	if err != nil {
		return fmt.Errorf("loading package: %w", err)
	}

	if release == nil {
		release, err = w.api.GetRelease(ctx, client.ReleaseRef{PackageID: pkg.ID, Version: t.Version})
		if err != nil {
			return fmt.Errorf("loading release: %w", err)
		}
	}

	remote, err := w.api.ListFiles(ctx, client.ReleaseRef{ReleaseID: release.ID})
	if err != nil {
		return fmt.Errorf("loading files: %w", err)
	}
	files, err := fromPackageFiles(remote)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.saving {
		return ErrSaveInProgress
	}
	w.pkg = pkg
	w.releaseID = release.ID
	w.initial = files
	w.files = cloneFiles(files)
	w.lastSavedAt = time.Time{}
	w.current = pickCurrent(w.files, t.FilePath)

	w.logger.Info("workspace loaded",
		slog.String("package", pkg.Name()),
		slog.String("version", release.Version),
		slog.Int("files", len(files)),
	)
	return nil
}

func (w *Workspace) loadTemplate(name string) error {
	tmpl, ok := templates[name]
	if !ok {
		return apperror.ValidationFailed("template",
			fmt.Sprintf("unknown template %q, choose one of %s", name, strings.Join(Templates(), ", ")))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.saving {
		return ErrSaveInProgress
	}
	w.pkg = nil
	w.newType = tmpl.Type
	w.releaseID = ""
	w.initial = nil
	w.files = cloneFiles(tmpl.Files)
	w.lastSavedAt = time.Time{}
	w.current = pickCurrent(w.files, "")
	return nil
}

// Restore puts back a workspace that was persisted with Snapshot, using
// files as the current local contents.
func (w *Workspace) Restore(snap Snapshot, files []File) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pkg = clonePackage(snap.Package)
	w.newType = snap.TemplateType
	w.releaseID = snap.ReleaseID
	w.initial = cloneFiles(snap.Initial)
	w.files = cloneFiles(files)
	w.lastSavedAt = snap.LastSavedAt
	w.current = pickCurrent(w.files, snap.Current)
}

// Snapshot is the persistent part of a workspace.
type Snapshot struct {
	Package      *model.Package    `json:"package,omitempty"`
	TemplateType model.PackageType `json:"template_type,omitempty"`
	ReleaseID    string            `json:"package_release_id,omitempty"`
	Initial      []File            `json:"initial_files"`
	Current      string            `json:"current_file,omitempty"`
	LastSavedAt  time.Time         `json:"last_saved_at,omitempty"`
}

// Snapshot returns what Restore needs besides the current files.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		Package:      clonePackage(w.pkg),
		TemplateType: w.newType,
		ReleaseID:    w.releaseID,
		Initial:      cloneFiles(w.initial),
		Current:      w.current,
		LastSavedAt:  w.lastSavedAt,
	}
}

// Package returns a copy of the loaded package, or nil for an unpublished
// template workspace.
func (w *Workspace) Package() *model.Package {
	w.mu.Lock()
	defer w.mu.Unlock()
	return clonePackage(w.pkg)
}

// ReleaseID is the release being edited.
func (w *Workspace) ReleaseID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.releaseID
}

// Files returns a copy of every file, hidden ones included.
func (w *Workspace) Files() []File {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneFiles(w.files)
}

// Current is the path of the selected file.
func (w *Workspace) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Select makes p the current file.
func (w *Workspace) Select(p string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if indexOf(w.files, p) < 0 {
		return apperror.NotFound("file", p)
	}
	w.current = p
	return nil
}

// IsOwner reports whether the actor created the loaded package. Members of
// an owning org may save too; the server decides that case.
func (w *Workspace) IsOwner() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pkg != nil && w.actorID != "" && w.pkg.CreatorAccountID == w.actorID
}

// State returns Saving while a save runs, otherwise Dirty or Clean.
func (w *Workspace) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.saving {
		return Saving
	}
	if w.hasUnsavedChangesLocked() {
		return Dirty
	}
	return Clean
}

// HasUnsavedChanges is false while saving and for a second after a save;
// otherwise it reports whether any visible file was added, removed or
// changed since the snapshot.
func (w *Workspace) HasUnsavedChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasUnsavedChangesLocked()
}

func (w *Workspace) hasUnsavedChangesLocked() bool {
	if w.saving {
		return false
	}
	if !w.lastSavedAt.IsZero() && w.now().Sub(w.lastSavedAt) < saveDebounce {
		return false
	}
	changed, removed := diff(w.initial, w.files)
	return len(changed) > 0 || len(removed) > 0
}

// Changes lists the visible paths Save would write and delete.
func (w *Workspace) Changes() (changed, removed []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, removed := diff(w.initial, w.files)
	for _, f := range c {
		changed = append(changed, f.Path)
	}
	return changed, removed
}

// Edit replaces the content of an existing file.
func (w *Workspace) Edit(p, content string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := indexOf(w.files, p)
	if i < 0 {
		return apperror.NotFound("file", p)
	}
	w.files[i].Content = content
	w.touchedLocked()
	return nil
}

// Create adds a file. The path must be non-empty and not in use.
func (w *Workspace) Create(p, content string) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if indexOf(w.files, p) >= 0 {
		return apperror.ValidationFailed("file_path", fmt.Sprintf("a file named %s already exists", p))
	}
	w.files = append(w.files, File{Path: p, Content: content})
	w.current = p
	w.touchedLocked()
	return nil
}

// Delete removes a file.
func (w *Workspace) Delete(p string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := indexOf(w.files, p)
	if i < 0 {
		return apperror.NotFound("file", p)
	}
	w.files = append(w.files[:i], w.files[i+1:]...)
	if w.current == p {
		w.current = pickCurrent(w.files, "")
	}
	w.touchedLocked()
	return nil
}

// RenameFile moves a file to a new path.
func (w *Workspace) RenameFile(from, to string) error {
	to, err := cleanPath(to)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	i := indexOf(w.files, from)
	if i < 0 {
		return apperror.NotFound("file", from)
	}
	if from == to {
		return nil
	}
	if indexOf(w.files, to) >= 0 {
		return apperror.ValidationFailed("file_path", fmt.Sprintf("a file named %s already exists", to))
	}
	w.files[i].Path = to
	if w.current == from {
		w.current = to
	}
	w.touchedLocked()
	return nil
}

// ReplaceFiles swaps in a new file set read from elsewhere, such as disk.
// Unlike the editing methods it does not end the post-save debounce.
func (w *Workspace) ReplaceFiles(files []File) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = cloneFiles(files)
	w.current = pickCurrent(w.files, w.current)
}

// touchedLocked ends the post-save debounce: an explicit edit is always a change.
func (w *Workspace) touchedLocked() {
	w.lastSavedAt = time.Time{}
	if w.saving {
		w.editedWhileSaving = true
	}
}

// Save writes every changed visible file with create_or_update and deletes
// every visible file that was removed. It keeps going past failures. When at
// least one change was stored the snapshot is advanced for the stored paths
// and OnSaved runs. The error is non-nil when any file failed; the result is
// always valid.
func (w *Workspace) Save(ctx context.Context) (SaveResult, error) {
	w.mu.Lock()
	if w.saving {
		w.mu.Unlock()
		return SaveResult{}, ErrSaveInProgress
	}
	if w.pkg == nil || w.releaseID == "" {
		w.mu.Unlock()
		return SaveResult{}, apperror.ValidationFailed("package_id", "nothing to save to; publish the package first")
	}
	w.saving = true
	w.editedWhileSaving = false
	ref := client.ReleaseRef{ReleaseID: w.releaseID}
	changed, removed := diff(w.initial, w.files)
	w.mu.Unlock()

	var res SaveResult
	saved := make(map[string]File, len(changed))
	for _, f := range changed {
		if _, _, err := w.api.CreateOrUpdateFile(ctx, ref, toFileInput(f)); err != nil {
			w.logger.Error("failed to save file", slog.String("path", f.Path), slog.String("error", err.Error()))
			res.Failed = append(res.Failed, FileError{Path: f.Path, Op: "update", Err: err})
			continue
		}
		res.Updated = append(res.Updated, f.Path)
		saved[f.Path] = f
	}
	for _, p := range removed {
		if err := w.api.DeleteFile(ctx, ref, p); err != nil {
			w.logger.Error("failed to delete file", slog.String("path", p), slog.String("error", err.Error()))
			res.Failed = append(res.Failed, FileError{Path: p, Op: "delete", Err: err})
			continue
		}
		res.Deleted = append(res.Deleted, p)
	}

	w.mu.Lock()
	w.saving = false
	if res.Count() > 0 {
		w.initial = advance(w.initial, saved, res.Deleted)
		if !w.editedWhileSaving {
			w.lastSavedAt = w.now()
		}
	}
	w.mu.Unlock()

	if res.Count() > 0 {
		w.logger.Info("workspace saved",
			slog.Int("updated", len(res.Updated)),
			slog.Int("deleted", len(res.Deleted)),
			slog.Int("failed", len(res.Failed)),
		)
		if w.onSaved != nil {
			w.onSaved(res)
		}
	}

	if len(res.Failed) > 0 {
		errs := make([]error, 0, len(res.Failed))
		for _, fe := range res.Failed {
			errs = append(errs, fe)
		}
		total := len(changed) + len(removed)
		return res, fmt.Errorf("saved %d of %d changes: %w", res.Count(), total, errors.Join(errs...))
	}
	return res, nil
}

// Discard throws local changes away and restores the snapshot.
func (w *Workspace) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.saving {
		return ErrSaveInProgress
	}
	w.files = cloneFiles(w.initial)
	w.lastSavedAt = time.Time{}
	w.current = pickCurrent(w.files, w.current)
	return nil
}

// Publish creates a package from an unpublished template workspace and
// switches the workspace to it.
func (w *Workspace) Publish(ctx context.Context, name string, isPrivate bool) (*model.Package, error) {
	w.mu.Lock()
	if w.pkg != nil {
		w.mu.Unlock()
		return nil, apperror.ValidationFailed("package_id", "workspace is already published")
	}
	typ := w.newType
	if typ == "" {
		typ = model.PackageTypeBoard
	}
	var files []client.FileInput
	for _, f := range w.files {
		if !Hidden(f.Path) {
			files = append(files, toFileInput(f))
		}
	}
	w.mu.Unlock()

	pkg, err := w.api.CreatePackage(ctx, client.CreatePackageRequest{
		Name:      name,
		Type:      typ,
		IsPrivate: isPrivate,
		Files:     files,
	})
	if err != nil {
		return nil, fmt.Errorf("publishing package: %w", err)
	}
	if err := w.Load(ctx, Target{PackageID: pkg.ID}); err != nil {
		return nil, err
	}
	return pkg, nil
}

// Fork copies the loaded package under the actor and switches to the copy.
// Local edits carry over and show up as unsaved changes against the fork.
// Forking one's own package is refused by the server with
// cannot_fork_own_package; the workspace is then left as it was.
func (w *Workspace) Fork(ctx context.Context) (*model.Package, error) {
	w.mu.Lock()
	pkg := w.pkg
	local := cloneFiles(w.files)
	actor := w.actorID
	w.mu.Unlock()

	if pkg == nil {
		return nil, apperror.ValidationFailed("package_id", "nothing to fork")
	}
	if actor == "" {
		return nil, apperror.Unauthorized("log in to fork packages")
	}

	fork, err := w.api.ForkPackage(ctx, pkg.ID)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeCannotForkOwnPackage) {
			w.logger.Warn("refusing to fork own package", slog.String("package", pkg.Name()))
		}
		return nil, err
	}

	if err := w.Load(ctx, Target{PackageID: fork.ID}); err != nil {
		return nil, fmt.Errorf("opening fork: %w", err)
	}
	w.ReplaceFiles(local)
	w.logger.Info("forked package", slog.String("from", pkg.Name()), slog.String("to", fork.Name()))
	return fork, nil
}

// Rename changes the package's unscoped name. An unchanged name (after
// trimming) sends nothing and reports false.
func (w *Workspace) Rename(ctx context.Context, newName string) (bool, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return false, apperror.ValidationFailed("name", "name is required")
	}

	w.mu.Lock()
	pkg := w.pkg
	w.mu.Unlock()
	if pkg == nil {
		return false, apperror.ValidationFailed("package_id", "nothing to rename")
	}
	if newName == pkg.UnscopedName {
		return false, nil
	}

	updated, err := w.api.UpdatePackage(ctx, client.UpdatePackageRequest{PackageID: pkg.ID, Name: &newName})
	if err != nil {
		return false, fmt.Errorf("renaming package: %w", err)
	}

	w.mu.Lock()
	w.pkg = updated
	w.mu.Unlock()
	return true, nil
}

// SetType changes the package type optimistically: the local value flips
// first and is restored if the server rejects the change.
func (w *Workspace) SetType(ctx context.Context, typ model.PackageType) error {
	if !typ.Valid() {
		return apperror.ValidationFailed("type", fmt.Sprintf("unknown package type %q", typ))
	}
	pkgID, err := w.packageID()
	if err != nil {
		return err
	}

	cmd := optimistic.Set("changing package type",
		func() model.PackageType {
			var v model.PackageType
			w.withPackage(func(p *model.Package) { v = p.Type })
			return v
		},
		func(v model.PackageType) { w.withPackage(func(p *model.Package) { p.Type = v }) },
		typ,
		func(ctx context.Context, next model.PackageType) error {
			_, err := w.api.UpdatePackage(ctx, client.UpdatePackageRequest{PackageID: pkgID, Type: &next})
			return err
		},
	)
	cmd.OnError = w.reportError
	return cmd.Run(ctx)
}

// SetPrivate changes the package visibility optimistically.
func (w *Workspace) SetPrivate(ctx context.Context, private bool) error {
	pkgID, err := w.packageID()
	if err != nil {
		return err
	}

	cmd := optimistic.Set("changing package visibility",
		func() bool {
			var v bool
			w.withPackage(func(p *model.Package) { v = p.IsPrivate })
			return v
		},
		func(v bool) { w.withPackage(func(p *model.Package) { p.IsPrivate = v }) },
		private,
		func(ctx context.Context, next bool) error {
			_, err := w.api.UpdatePackage(ctx, client.UpdatePackageRequest{PackageID: pkgID, IsPrivate: &next})
			return err
		},
	)
	cmd.OnError = w.reportError
	return cmd.Run(ctx)
}

func (w *Workspace) packageID() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pkg == nil {
		return "", apperror.ValidationFailed("package_id", "no package loaded")
	}
	return w.pkg.ID, nil
}

// withPackage runs fn on the loaded package under the lock. It does nothing
// when the package was unloaded in the meantime.
func (w *Workspace) withPackage(fn func(p *model.Package)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pkg != nil {
		fn(w.pkg)
	}
}

func (w *Workspace) reportError(err error) {
	w.logger.Error("package update rolled back", slog.String("error", err.Error()))
}

// diff returns the visible files that are new or changed and the visible
// initial paths that no longer exist.
func diff(initial, current []File) (changed []File, removed []string) {
	before := make(map[string]string, len(initial))
	for _, f := range initial {
		if !Hidden(f.Path) {
			before[f.Path] = f.Content
		}
	}
	seen := make(map[string]bool, len(current))
	for _, f := range current {
		if Hidden(f.Path) {
			continue
		}
		seen[f.Path] = true
		if old, ok := before[f.Path]; !ok || old != f.Content {
			changed = append(changed, f)
		}
	}
	for _, f := range initial {
		if !Hidden(f.Path) && !seen[f.Path] {
			removed = append(removed, f.Path)
		}
	}
	return changed, removed
}

// advance applies the stored changes to the snapshot.
func advance(initial []File, saved map[string]File, deleted []string) []File {
	gone := make(map[string]bool, len(deleted))
	for _, p := range deleted {
		gone[p] = true
	}
	out := make([]File, 0, len(initial)+len(saved))
	for _, f := range initial {
		if gone[f.Path] {
			continue
		}
		if s, ok := saved[f.Path]; ok {
			f = s
			delete(saved, f.Path)
		}
		out = append(out, f)
	}
	added := make([]string, 0, len(saved))
	for p := range saved {
		added = append(added, p)
	}
	sort.Strings(added)
	for _, p := range added {
		out = append(out, saved[p])
	}
	return out
}

func fromPackageFiles(remote []model.PackageFile) ([]File, error) {
	files := make([]File, 0, len(remote))
	for _, pf := range remote {
		content := pf.ContentText
		if pf.ContentBase64 != "" {
			raw, err := base64.StdEncoding.DecodeString(pf.ContentBase64)
			if err != nil {
				return nil, fmt.Errorf("decoding %s: %w", pf.FilePath, err)
			}
			content = string(raw)
		}
		files = append(files, File{Path: pf.FilePath, Content: content})
	}
	return files, nil
}

func toFileInput(f File) client.FileInput {
	if utf8.ValidString(f.Content) {
		return client.FileInput{FilePath: f.Path, ContentText: f.Content}
	}
	return client.FileInput{FilePath: f.Path, ContentBase64: base64.StdEncoding.EncodeToString([]byte(f.Content))}
}

func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", apperror.ValidationFailed("file_path", "file name is required")
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return "", apperror.ValidationFailed("file_path", "file name must be a relative path using '/'")
	}
	// Same rule the registry applies, so a bad name fails here and not on save.
	if path.Clean(p) != p || p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", apperror.ValidationFailed("file_path", "file name must be a clean path inside the package")
	}
	return p, nil
}

// pickCurrent prefers want, then index.tsx, then the first visible file.
func pickCurrent(files []File, want string) string {
	if want != "" && indexOf(files, want) >= 0 {
		return want
	}
	if indexOf(files, "index.tsx") >= 0 {
		return "index.tsx"
	}
	for _, f := range files {
		if !Hidden(f.Path) {
			return f.Path
		}
	}
	return ""
}

func indexOf(files []File, p string) int {
	for i, f := range files {
		if f.Path == p {
			return i
		}
	}
	return -1
}

func cloneFiles(files []File) []File {
	if files == nil {
		return nil
	}
	return append([]File(nil), files...)
}

func clonePackage(p *model.Package) *model.Package {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
