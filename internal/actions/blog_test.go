package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillagent/quill/internal/blogger"
	"github.com/quillagent/quill/pkg/schema"
)

// fakePublisher records calls and returns canned results.
type fakePublisher struct {
	blogs []blogger.Blog
	posts map[string]*blogger.Post
	err   error

	createdDraft bool
	createdInput blogger.PostInput
	updatedInput blogger.PostInput
	uploadedPath string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{posts: make(map[string]*blogger.Post)}
}

func (f *fakePublisher) ListBlogs(ctx context.Context) ([]blogger.Blog, error) {
	return f.blogs, f.err
}

func (f *fakePublisher) CreatePost(ctx context.Context, blogID string, in blogger.PostInput, draft bool) (*blogger.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.createdInput = in
	f.createdDraft = draft
	status := "live"
	if draft {
		status = "draft"
	}
	p := &blogger.Post{ID: "p1", Title: in.Title, Content: in.Content, Labels: in.Labels, Status: status, URL: "https://example.com/p1"}
	f.posts[p.ID] = p
	return p, nil
}

func (f *fakePublisher) UpdatePost(ctx context.Context, blogID, postID string, in blogger.PostInput) (*blogger.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updatedInput = in
	p := &blogger.Post{ID: postID, Title: in.Title, Content: in.Content, Labels: in.Labels, Status: "draft"}
	f.posts[postID] = p
	return p, nil
}

func (f *fakePublisher) PublishPost(ctx context.Context, blogID, postID string) (*blogger.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.posts[postID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "get post: post %q not found", postID)
	}
	p.Status = "live"
	return p, nil
}

func (f *fakePublisher) GetPost(ctx context.Context, blogID, postID string) (*blogger.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.posts[postID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "get post: post %q not found", postID)
	}
	return p, nil
}

func (f *fakePublisher) ListPosts(ctx context.Context, blogID string, opts blogger.ListOptions) ([]blogger.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []blogger.Post
	for _, p := range f.posts {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePublisher) UploadImage(ctx context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploadedPath = path
	return "https://drive.google.com/uc?export=view&id=file123", nil
}

func newBlogRegistry(t *testing.T, pub Publisher) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	require.NoError(t, RegisterAll(r, pub))
	return r
}

func TestRegisterAllCatalog(t *testing.T) {
	r := newBlogRegistry(t, newFakePublisher())

	names := make([]string, 0)
	for _, d := range r.ListActions() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{
		"blog_list_blogs",
		"blog_create_post",
		"blog_update_post",
		"blog_publish_post",
		"blog_get_post",
		"blog_list_posts",
		"blog_upload_image",
	}, names)

	typeNames := make([]string, 0)
	for _, d := range r.ListTypes() {
		typeNames = append(typeNames, d.Name)
	}
	assert.Equal(t, []string{
		"CreatePostRequest",
		"UpdatePostRequest",
		"PostResponse",
		"BlogInfo",
		"ImageUploadResult",
	}, typeNames)
}

func TestBlogActionDescriptors(t *testing.T) {
	r := newBlogRegistry(t, newFakePublisher())

	create, err := r.Get("blog_create_post")
	require.NoError(t, err)
	assert.Equal(t, []string{"draft_approved"}, create.Descriptor.Preconditions)
	assert.Equal(t, []string{"post_created"}, create.Descriptor.Postconditions)
	assert.Equal(t, 0.3, create.Descriptor.Cost)
	assert.Equal(t, 0.8, create.Descriptor.Value)
	assert.False(t, create.Descriptor.CanRerun)

	publish, err := r.Get("blog_publish_post")
	require.NoError(t, err)
	assert.Equal(t, 0.9, publish.Descriptor.Value)
	assert.False(t, publish.Descriptor.CanRerun)

	list, err := r.Get("blog_list_blogs")
	require.NoError(t, err)
	assert.True(t, list.Descriptor.CanRerun)
	assert.Empty(t, list.Descriptor.Preconditions)
}

func TestListBlogs(t *testing.T) {
	pub := newFakePublisher()
	pub.blogs = []blogger.Blog{{ID: "42", Name: "My Blog", URL: "https://myblog.example.com"}}
	r := newBlogRegistry(t, pub)

	resp := r.Execute(context.Background(), "blog_list_blogs", nil)
	require.Equal(t, StatusSuccess, resp.Status)
	blogs, ok := resp.Result["blogs"].([]any)
	require.True(t, ok)
	require.Len(t, blogs, 1)
	assert.Equal(t, "42", blogs[0].(map[string]any)["id"])
}

func TestCreatePost(t *testing.T) {
	pub := newFakePublisher()
	r := newBlogRegistry(t, pub)

	resp := r.Execute(context.Background(), "blog_create_post", map[string]any{
		"request": map[string]any{
			"blog_id": "42",
			"title":   "Hello",
			"content": "<p>Body</p>",
			"labels":  []any{"go", "blogging"},
			"draft":   true,
		},
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Error)
	assert.Equal(t, "p1", resp.Result["id"])
	assert.Equal(t, "draft", resp.Result["status"])
	assert.True(t, pub.createdDraft)
	assert.Equal(t, []string{"go", "blogging"}, pub.createdInput.Labels)
}

func TestCreatePostAcceptsFlatParams(t *testing.T) {
	r := newBlogRegistry(t, newFakePublisher())

	// Without the "request" wrapper, the flat map is the request.
	resp := r.Execute(context.Background(), "blog_create_post", map[string]any{
		"blog_id": "42",
		"title":   "Flat",
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Error)
}

func TestCreatePostValidation(t *testing.T) {
	r := newBlogRegistry(t, newFakePublisher())

	for _, tc := range []struct {
		name    string
		params  map[string]any
		message string
	}{
		{"missing blog_id", map[string]any{"request": map[string]any{"title": "x"}}, "blog_id is required"},
		{"missing title", map[string]any{"request": map[string]any{"blog_id": "42"}}, "title is required"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp := r.Execute(context.Background(), "blog_create_post", tc.params)
			assert.Equal(t, StatusError, resp.Status)
			assert.Contains(t, resp.Error, tc.message)
			assert.Equal(t, schema.ErrCodeValidation, resp.Code)
		})
	}
}

func TestCreatePostEmbedsImages(t *testing.T) {
	pub := newFakePublisher()
	r := newBlogRegistry(t, pub)

	resp := r.Execute(context.Background(), "blog_create_post", map[string]any{
		"request": map[string]any{
			"blog_id": "42",
			"title":   "With images",
			"content": "<p>Intro</p>",
			"images": []any{
				map[string]any{"url": "https://img.example.com/a.png", "caption": "A <diagram>"},
				map[string]any{"url": "https://img.example.com/b.png"},
			},
		},
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Error)

	content := pub.createdInput.Content
	assert.Contains(t, content, `<figure><img src="https://img.example.com/a.png" alt="A &lt;diagram&gt;"/><figcaption>A &lt;diagram&gt;</figcaption></figure>`)
	assert.Contains(t, content, `<figure><img src="https://img.example.com/b.png" alt=""/></figure>`)
	assert.True(t, len(content) > len("<p>Intro</p>"))
}

func TestUpdatePostMergesExisting(t *testing.T) {
	pub := newFakePublisher()
	pub.posts["p9"] = &blogger.Post{
		ID: "p9", Title: "Old title", Content: "<p>old</p>", Labels: []string{"keep"}, Status: "draft",
	}
	r := newBlogRegistry(t, pub)

	resp := r.Execute(context.Background(), "blog_update_post", map[string]any{
		"request": map[string]any{
			"blog_id": "42",
			"post_id": "p9",
			"title":   "New title",
		},
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Error)

	// Only title was provided; content and labels carry over.
	assert.Equal(t, "New title", pub.updatedInput.Title)
	assert.Equal(t, "<p>old</p>", pub.updatedInput.Content)
	assert.Equal(t, []string{"keep"}, pub.updatedInput.Labels)
}

func TestUpdatePostNotFound(t *testing.T) {
	r := newBlogRegistry(t, newFakePublisher())

	resp := r.Execute(context.Background(), "blog_update_post", map[string]any{
		"request": map[string]any{"blog_id": "42", "post_id": "nope"},
	})
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, schema.ErrCodeNotFound, resp.Code)
}

func TestPublishPost(t *testing.T) {
	pub := newFakePublisher()
	pub.posts["p2"] = &blogger.Post{ID: "p2", Title: "Draft", Status: "draft"}
	r := newBlogRegistry(t, pub)

	resp := r.Execute(context.Background(), "blog_publish_post", map[string]any{
		"blog_id": "42",
		"post_id": "p2",
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Error)
	assert.Equal(t, "live", resp.Result["status"])
}

func TestGetPostDefaults(t *testing.T) {
	pub := newFakePublisher()
	pub.posts["p3"] = &blogger.Post{ID: "p3", Title: "T", Status: "draft"}
	r := newBlogRegistry(t, pub)

	resp := r.Execute(context.Background(), "blog_get_post", map[string]any{
		"blog_id": "42",
		"post_id": "p3",
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Error)
	labels, ok := resp.Result["labels"].([]string)
	require.True(t, ok)
	assert.Empty(t, labels, "labels default to an empty list, never nil")
}

func TestListPostsParams(t *testing.T) {
	pub := newFakePublisher()
	pub.posts["p4"] = &blogger.Post{ID: "p4", Title: "T", Status: "live"}
	r := newBlogRegistry(t, pub)

	resp := r.Execute(context.Background(), "blog_list_posts", map[string]any{
		"blog_id":      "42",
		"max_results":  float64(5), // JSON numbers decode as float64
		"fetch_drafts": true,
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Error)
	posts, ok := resp.Result["posts"].([]any)
	require.True(t, ok)
	assert.Len(t, posts, 1)

	missing := r.Execute(context.Background(), "blog_list_posts", nil)
	assert.Equal(t, StatusError, missing.Status)
	assert.Contains(t, missing.Error, "blog_id is required")
}
