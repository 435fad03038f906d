package actions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillagent/quill/pkg/schema"
)

func TestUploadImage(t *testing.T) {
	pub := newFakePublisher()
	r := newBlogRegistry(t, pub)

	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("not a real png"), 0o644))

	resp := r.Execute(context.Background(), "blog_upload_image", map[string]any{
		"file_path": path,
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Error)
	assert.Equal(t, "https://drive.google.com/uc?export=view&id=file123", resp.Result["url"])
	assert.Equal(t, path, pub.uploadedPath)
}

func TestUploadImageValidation(t *testing.T) {
	r := newBlogRegistry(t, newFakePublisher())

	resp := r.Execute(context.Background(), "blog_upload_image", nil)
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "file_path is required")

	resp = r.Execute(context.Background(), "blog_upload_image", map[string]any{
		"file_path": filepath.Join(t.TempDir(), "missing.png"),
	})
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "file not found")
	assert.Equal(t, schema.ErrCodeValidation, resp.Code)
}
