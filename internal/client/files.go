package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sakif/circuitpad/internal/model"
)

// ReleaseRef addresses a release by ID, or a package plus optional version.
// No version means the latest release.
type ReleaseRef struct {
	ReleaseID string
	PackageID string
	Version   string
}

func (r ReleaseRef) query() url.Values {
	q := url.Values{}
	setIf(q, "package_release_id", r.ReleaseID)
	setIf(q, "package_id", r.PackageID)
	setIf(q, "version", r.Version)
	return q
}

type fileBody struct {
	PackageReleaseID string `json:"package_release_id,omitempty"`
	PackageID        string `json:"package_id,omitempty"`
	Version          string `json:"version,omitempty"`
	FileInput
}

func newFileBody(ref ReleaseRef, in FileInput) fileBody {
	return fileBody{
		PackageReleaseID: ref.ReleaseID,
		PackageID:        ref.PackageID,
		Version:          ref.Version,
		FileInput:        in,
	}
}

func (c *Client) ListFiles(ctx context.Context, ref ReleaseRef) ([]model.PackageFile, error) {
	var files []model.PackageFile
	if err := c.get(ctx, "/package_files/list", ref.query(), "package_files", &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) GetFile(ctx context.Context, ref ReleaseRef, filePath string) (*model.PackageFile, error) {
	q := ref.query()
	q.Set("file_path", filePath)
	var file model.PackageFile
	if err := c.get(ctx, "/package_files/get", q, "package_file", &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (c *Client) GetFileByID(ctx context.Context, id string) (*model.PackageFile, error) {
	var file model.PackageFile
	q := url.Values{"package_file_id": {id}}
	if err := c.get(ctx, "/package_files/get", q, "package_file", &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// CreateFile fails with a conflict when the path already exists.
func (c *Client) CreateFile(ctx context.Context, ref ReleaseRef, in FileInput) (*model.PackageFile, error) {
	var file model.PackageFile
	if err := c.post(ctx, "/package_files/create", newFileBody(ref, in), "package_file", &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// CreateOrUpdateFile upserts by path. created reports whether the path was new.
func (c *Client) CreateOrUpdateFile(ctx context.Context, ref ReleaseRef, in FileInput) (file *model.PackageFile, created bool, err error) {
	file = &model.PackageFile{}
	req, err := c.jsonRequest(ctx, "/package_files/create_or_update", newFileBody(ref, in))
	if err != nil {
		return nil, false, err
	}
	status, err := c.doStatus(req, "package_file", file)
	if err != nil {
		return nil, false, err
	}
	return file, status == http.StatusCreated, nil
}

func (c *Client) DeleteFile(ctx context.Context, ref ReleaseRef, filePath string) error {
	return c.post(ctx, "/package_files/delete", newFileBody(ref, FileInput{FilePath: filePath}), "", nil)
}
