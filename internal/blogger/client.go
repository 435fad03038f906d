package blogger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/blogger/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/quillagent/quill/pkg/schema"
)

// Direct link for embedding in <img src="...">. Blogger has no image upload
// API; images go to Drive and the post embeds the file's view URL.
const driveViewURL = "https://drive.google.com/uc?export=view&id=%s"

// TokenProvider supplies an OAuth2 token source for Google API calls.
// Implemented by auth.Manager. Returns UNAUTHENTICATED when no token is
// stored yet.
type TokenProvider interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// Client is the Blogger/Drive collaborator behind the blog actions. Services
// are built per call so the process can start before a token is stored; a
// missing token surfaces as a normal call error, never a start-up failure.
type Client struct {
	tokens TokenProvider
}

// NewClient creates a Client over the given token provider.
func NewClient(tokens TokenProvider) *Client {
	return &Client{tokens: tokens}
}

func (c *Client) bloggerService(ctx context.Context) (*blogger.Service, error) {
	ts, err := c.tokens.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := blogger.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeUnavailable, "failed to build blogger service").WithCause(err)
	}
	return svc, nil
}

func (c *Client) driveService(ctx context.Context) (*drive.Service, error) {
	ts, err := c.tokens.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeUnavailable, "failed to build drive service").WithCause(err)
	}
	return svc, nil
}

// ListBlogs returns the blogs of the authenticated user.
func (c *Client) ListBlogs(ctx context.Context) ([]Blog, error) {
	svc, err := c.bloggerService(ctx)
	if err != nil {
		return nil, err
	}
	list, err := svc.Blogs.ListByUser("self").Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("list blogs", err)
	}
	blogs := make([]Blog, 0, len(list.Items))
	for _, b := range list.Items {
		blogs = append(blogs, Blog{ID: b.Id, Name: b.Name, URL: b.Url})
	}
	return blogs, nil
}

// CreatePost inserts a new post, as a draft unless draft is false.
func (c *Client) CreatePost(ctx context.Context, blogID string, in PostInput, draft bool) (*Post, error) {
	svc, err := c.bloggerService(ctx)
	if err != nil {
		return nil, err
	}
	body := &blogger.Post{Title: in.Title, Content: in.Content, Labels: in.Labels}
	result, err := svc.Posts.Insert(blogID, body).IsDraft(draft).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("create post", err)
	}
	p := fromAPIPost(result)
	// Insert does not echo a status field for drafts.
	if draft {
		p.Status = "draft"
	} else {
		p.Status = "live"
	}
	return p, nil
}

// UpdatePost replaces the post body. Callers merge unchanged fields from
// GetPost before calling.
func (c *Client) UpdatePost(ctx context.Context, blogID, postID string, in PostInput) (*Post, error) {
	svc, err := c.bloggerService(ctx)
	if err != nil {
		return nil, err
	}
	body := &blogger.Post{Title: in.Title, Content: in.Content, Labels: in.Labels}
	result, err := svc.Posts.Update(blogID, postID, body).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("update post", err)
	}
	return fromAPIPost(result), nil
}

// PublishPost makes a draft post live.
func (c *Client) PublishPost(ctx context.Context, blogID, postID string) (*Post, error) {
	svc, err := c.bloggerService(ctx)
	if err != nil {
		return nil, err
	}
	result, err := svc.Posts.Publish(blogID, postID).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError("publish post", err)
	}
	p := fromAPIPost(result)
	p.Status = "live"
	return p, nil
}

// GetPost fetches one post with its body, including drafts (ADMIN view).
func (c *Client) GetPost(ctx context.Context, blogID, postID string) (*Post, error) {
	svc, err := c.bloggerService(ctx)
	if err != nil {
		return nil, err
	}
	result, err := svc.Posts.Get(blogID, postID).
		FetchBody(true).
		FetchImages(false).
		View("ADMIN").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapAPIError("get post", err)
	}
	return fromAPIPost(result), nil
}

// ListPosts lists recent posts without bodies. FetchDrafts widens the status
// filter to include drafts and scheduled posts (ADMIN view).
func (c *Client) ListPosts(ctx context.Context, blogID string, opts ListOptions) ([]Post, error) {
	svc, err := c.bloggerService(ctx)
	if err != nil {
		return nil, err
	}
	call := svc.Posts.List(blogID).FetchBodies(false).FetchImages(false).Context(ctx)
	if opts.MaxResults > 0 {
		call = call.MaxResults(opts.MaxResults)
	}
	if opts.FetchDrafts {
		call = call.Status("live", "draft", "scheduled").View("ADMIN")
	}
	list, err := call.Do()
	if err != nil {
		return nil, wrapAPIError("list posts", err)
	}
	posts := make([]Post, 0, len(list.Items))
	for _, p := range list.Items {
		posts = append(posts, *fromAPIPost(p))
	}
	return posts, nil
}

// UploadImage uploads a local image to Drive, grants anyone-with-link read
// access, and returns a URL usable in an <img src="...">.
func (c *Client) UploadImage(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "image file not found: %s", path).WithCause(err)
	}
	defer f.Close()

	svc, err := c.driveService(ctx)
	if err != nil {
		return "", err
	}

	name := filepath.Base(path)
	file, err := svc.Files.Create(&drive.File{Name: name}).
		Media(f, googleapi.ContentType(mimeFor(filepath.Ext(path)))).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapAPIError("upload image", err)
	}

	_, err = svc.Permissions.Create(file.Id, &drive.Permission{Type: "anyone", Role: "reader"}).
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapAPIError("share image", err)
	}

	return fmt.Sprintf(driveViewURL, file.Id), nil
}

func fromAPIPost(p *blogger.Post) *Post {
	status := p.Status
	if status == "" {
		status = "unknown"
	}
	return &Post{
		ID:        p.Id,
		Title:     p.Title,
		Content:   p.Content,
		Labels:    p.Labels,
		Status:    status,
		URL:       p.Url,
		Published: p.Published,
		Updated:   p.Updated,
	}
}

// wrapAPIError converts a Google API failure into a QuillError, preserving
// the human-readable message and mapping auth failures to UNAUTHENTICATED.
func wrapAPIError(op string, err error) error {
	code := schema.ErrCodeExecution
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 401, 403:
			code = schema.ErrCodeUnauthenticated
		case 404:
			code = schema.ErrCodeNotFound
		}
	}
	return schema.NewErrorf(code, "%s: %s", op, err.Error()).WithCause(err)
}

func mimeFor(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
