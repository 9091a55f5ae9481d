package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/circuitpad/internal/workspace"
)

const (
	stateDir  = ".circuitpad"
	stateFile = "state.json"
)

var errNotWorkspace = errors.New("not a circuitpad workspace (run circuitpad pull or circuitpad new first)")

func statePath(dir string) string {
	return filepath.Join(dir, stateDir, stateFile)
}

// openLocal restores the workspace persisted in dir with the directory's
// files as the current contents.
func openLocal(e *env, dir string) (*workspace.Workspace, error) {
	raw, err := os.ReadFile(statePath(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNotWorkspace
	}
	if err != nil {
		return nil, err
	}
	var snap workspace.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("reading %s: %w", statePath(dir), err)
	}
	// The post-save grace period only makes sense within one process; a file
	// changed on disk since is always a change.
	snap.LastSavedAt = time.Time{}

	files, err := readFiles(dir)
	if err != nil {
		return nil, err
	}
	ws, err := e.newWorkspace()
	if err != nil {
		return nil, err
	}
	ws.Restore(snap, files)
	return ws, nil
}

// persist writes the snapshot of ws into dir.
func persist(dir string, ws *workspace.Workspace) error {
	raw, err := json.MarshalIndent(ws.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dir, stateDir), 0o755); err != nil {
		return err
	}
	return os.WriteFile(statePath(dir), raw, 0o644)
}

// readFiles returns every file under dir as slash-separated relative paths.
// The state directory and hidden directories are skipped.
func readFiles(dir string) ([]workspace.File, error) {
	var files []workspace.File
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == stateDir || (rel != "." && workspace.Hidden(rel+"/x")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, workspace.File{Path: rel, Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading workspace files: %w", err)
	}
	return files, nil
}

// writeFiles writes files into dir and removes the visible files of
// previous that are no longer in files. Hidden local files are left alone.
func writeFiles(dir string, files, previous []workspace.File) error {
	keep := make(map[string]bool, len(files))
	for _, f := range files {
		if !filepath.IsLocal(filepath.FromSlash(f.Path)) {
			return fmt.Errorf("refusing to write %q outside the workspace", f.Path)
		}
		keep[f.Path] = true
		p := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(f.Content), 0o644); err != nil {
			return err
		}
	}
	for _, f := range previous {
		if keep[f.Path] || workspace.Hidden(f.Path) {
			continue
		}
		err := os.Remove(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
