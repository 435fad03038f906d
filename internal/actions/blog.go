package actions

import (
	"context"
	"strings"

	"github.com/quillagent/quill/internal/blogger"
	"github.com/quillagent/quill/internal/logging"
	"github.com/quillagent/quill/pkg/schema"
)

// Publisher is the Blogger/Drive collaborator behind the blog actions.
// Implemented by blogger.Client; faked in tests.
type Publisher interface {
	ListBlogs(ctx context.Context) ([]blogger.Blog, error)
	CreatePost(ctx context.Context, blogID string, in blogger.PostInput, draft bool) (*blogger.Post, error)
	UpdatePost(ctx context.Context, blogID, postID string, in blogger.PostInput) (*blogger.Post, error)
	PublishPost(ctx context.Context, blogID, postID string) (*blogger.Post, error)
	GetPost(ctx context.Context, blogID, postID string) (*blogger.Post, error)
	ListPosts(ctx context.Context, blogID string, opts blogger.ListOptions) ([]blogger.Post, error)
	UploadImage(ctx context.Context, path string) (string, error)
}

// blogTypes are the type descriptors published for planner discovery.
var blogTypes = []TypeDef{
	{
		Name:        "CreatePostRequest",
		Description: "Request to create a new blog post",
		Properties: []PropertyDef{
			{Name: "blog_id", Kind: "string", Description: "Blog ID to post to"},
			{Name: "title", Kind: "string", Description: "Post title"},
			{Name: "content", Kind: "string", Description: "HTML content"},
			{Name: "labels", Kind: "array", Description: "Labels/tags for the post"},
			{Name: "images", Kind: "array", Description: "Images to attach (url + caption)"},
			{Name: "draft", Kind: "boolean", Description: "Whether to save as draft"},
		},
	},
	{
		Name:        "UpdatePostRequest",
		Description: "Request to update an existing post",
		Properties: []PropertyDef{
			{Name: "blog_id", Kind: "string", Description: "Blog ID"},
			{Name: "post_id", Kind: "string", Description: "Post ID to update"},
			{Name: "title", Kind: "string", Description: "New title (optional)"},
			{Name: "content", Kind: "string", Description: "New content (optional)"},
			{Name: "labels", Kind: "array", Description: "New labels (optional)"},
			{Name: "images", Kind: "array", Description: "Images to attach"},
		},
	},
	{
		Name:        "PostResponse",
		Description: "Response from post creation/update",
		Properties: []PropertyDef{
			{Name: "id", Kind: "string", Description: "Post ID"},
			{Name: "url", Kind: "string", Description: "Post URL"},
			{Name: "status", Kind: "string", Description: "Post status (draft/live)"},
			{Name: "title", Kind: "string", Description: "Post title"},
		},
	},
	{
		Name:        "BlogInfo",
		Description: "Blog information",
		Properties: []PropertyDef{
			{Name: "id", Kind: "string", Description: "Blog ID"},
			{Name: "name", Kind: "string", Description: "Blog name"},
			{Name: "url", Kind: "string", Description: "Blog URL"},
		},
	},
}

// RegisterBlogActions registers the blog type descriptors and actions.
// Registration failures indicate a catalog collision and should abort start-up.
func RegisterBlogActions(r *Registry, pub Publisher) error {
	for _, t := range blogTypes {
		if err := r.RegisterType(t); err != nil {
			return err
		}
	}

	regs := []struct {
		desc    Descriptor
		handler Handler
	}{
		{
			Descriptor{
				Name:        "blog_list_blogs",
				Description: "List all blogs for the authenticated user. Returns blog IDs and names.",
				Outputs:     []IO{{Name: "blogs", Kind: "array"}},
				Cost:        0.1,
				Value:       0.3,
				CanRerun:    true,
			},
			listBlogsHandler(pub),
		},
		{
			Descriptor{
				Name:           "blog_create_post",
				Description:    "Create a new blog post. Can be saved as draft or published immediately.",
				Inputs:         []IO{{Name: "request", Kind: "CreatePostRequest"}},
				Outputs:        []IO{{Name: "result", Kind: "PostResponse"}},
				Preconditions:  []string{"draft_approved"},
				Postconditions: []string{"post_created"},
				Cost:           0.3,
				Value:          0.8,
				CanRerun:       false,
			},
			createPostHandler(pub),
		},
		{
			Descriptor{
				Name:           "blog_update_post",
				Description:    "Update an existing blog post with new content, title, or labels.",
				Inputs:         []IO{{Name: "request", Kind: "UpdatePostRequest"}},
				Outputs:        []IO{{Name: "result", Kind: "PostResponse"}},
				Preconditions:  []string{"post_created"},
				Postconditions: []string{"post_updated"},
				Cost:           0.2,
				Value:          0.6,
				CanRerun:       true,
			},
			updatePostHandler(pub),
		},
		{
			Descriptor{
				Name:           "blog_publish_post",
				Description:    "Publish a draft post to make it live.",
				Inputs:         []IO{{Name: "blog_id", Kind: "string"}, {Name: "post_id", Kind: "string"}},
				Outputs:        []IO{{Name: "result", Kind: "PostResponse"}},
				Preconditions:  []string{"post_created"},
				Postconditions: []string{"post_published"},
				Cost:           0.1,
				Value:          0.9,
				CanRerun:       false,
			},
			publishPostHandler(pub),
		},
		{
			Descriptor{
				Name:        "blog_get_post",
				Description: "Get a post's content for editing or review.",
				Inputs:      []IO{{Name: "blog_id", Kind: "string"}, {Name: "post_id", Kind: "string"}},
				Outputs:     []IO{{Name: "post", Kind: "object"}},
				Cost:        0.1,
				Value:       0.4,
				CanRerun:    true,
			},
			getPostHandler(pub),
		},
		{
			Descriptor{
				Name:        "blog_list_posts",
				Description: "List recent posts for a blog.",
				Inputs: []IO{
					{Name: "blog_id", Kind: "string"},
					{Name: "max_results", Kind: "number"},
					{Name: "fetch_drafts", Kind: "boolean"},
				},
				Outputs:  []IO{{Name: "posts", Kind: "array"}},
				Cost:     0.1,
				Value:    0.3,
				CanRerun: true,
			},
			listPostsHandler(pub),
		},
	}

	for _, reg := range regs {
		if err := r.Register(reg.desc, reg.handler); err != nil {
			return err
		}
	}
	return nil
}

func listBlogsHandler(pub Publisher) Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		blogs, err := pub.ListBlogs(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(blogs))
		for _, b := range blogs {
			out = append(out, map[string]any{"id": b.ID, "name": b.Name, "url": b.URL})
		}
		return map[string]any{"blogs": out}, nil
	}
}

func createPostHandler(pub Publisher) Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		request := requestParams(params)

		blogID := stringParam(request, "blog_id", "")
		title := stringParam(request, "title", "")
		if blogID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "blog_id is required")
		}
		if title == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "title is required")
		}
		ctx = logging.WithBlogID(ctx, blogID)

		content := stringParam(request, "content", "")
		if images := mapSliceParam(request, "images"); len(images) > 0 {
			content = buildContentWithImages(content, images)
		}

		draft := boolParam(request, "draft", true)
		post, err := pub.CreatePost(ctx, blogID, blogger.PostInput{
			Title:   title,
			Content: content,
			Labels:  stringSliceParam(request, "labels"),
		}, draft)
		if err != nil {
			return nil, err
		}

		return map[string]any{
			"id":     post.ID,
			"url":    post.URL,
			"status": post.Status,
			"title":  post.Title,
		}, nil
	}
}

func updatePostHandler(pub Publisher) Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		request := requestParams(params)

		blogID := stringParam(request, "blog_id", "")
		postID := stringParam(request, "post_id", "")
		if blogID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "blog_id is required")
		}
		if postID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "post_id is required")
		}
		ctx = logging.WithBlogID(ctx, blogID)

		// Only provided fields are replaced; the rest carries over from the
		// existing post (ADMIN view so drafts are reachable).
		existing, err := pub.GetPost(ctx, blogID, postID)
		if err != nil {
			return nil, err
		}

		in := blogger.PostInput{
			Title:   existing.Title,
			Content: existing.Content,
			Labels:  existing.Labels,
		}
		if hasParam(request, "title") {
			in.Title = stringParam(request, "title", in.Title)
		}
		if hasParam(request, "content") {
			in.Content = stringParam(request, "content", in.Content)
		}
		if hasParam(request, "labels") {
			in.Labels = stringSliceParam(request, "labels")
		}
		if images := mapSliceParam(request, "images"); len(images) > 0 {
			in.Content = buildContentWithImages(in.Content, images)
		}

		post, err := pub.UpdatePost(ctx, blogID, postID, in)
		if err != nil {
			return nil, err
		}

		return map[string]any{
			"id":     post.ID,
			"url":    post.URL,
			"status": post.Status,
			"title":  post.Title,
		}, nil
	}
}

func publishPostHandler(pub Publisher) Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		blogID := stringParam(params, "blog_id", "")
		postID := stringParam(params, "post_id", "")
		if blogID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "blog_id is required")
		}
		if postID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "post_id is required")
		}
		ctx = logging.WithBlogID(ctx, blogID)

		post, err := pub.PublishPost(ctx, blogID, postID)
		if err != nil {
			return nil, err
		}

		return map[string]any{
			"id":        post.ID,
			"url":       post.URL,
			"status":    "live",
			"title":     post.Title,
			"published": post.Published,
		}, nil
	}
}

func getPostHandler(pub Publisher) Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		blogID := stringParam(params, "blog_id", "")
		postID := stringParam(params, "post_id", "")
		if blogID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "blog_id is required")
		}
		if postID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "post_id is required")
		}
		ctx = logging.WithBlogID(ctx, blogID)

		post, err := pub.GetPost(ctx, blogID, postID)
		if err != nil {
			return nil, err
		}

		labels := post.Labels
		if labels == nil {
			labels = []string{}
		}
		return map[string]any{
			"id":        post.ID,
			"title":     post.Title,
			"content":   post.Content,
			"labels":    labels,
			"status":    post.Status,
			"url":       post.URL,
			"published": post.Published,
			"updated":   post.Updated,
		}, nil
	}
}

func listPostsHandler(pub Publisher) Handler {
	return func(ctx context.Context, params map[string]any) (map[string]any, error) {
		blogID := stringParam(params, "blog_id", "")
		if blogID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "blog_id is required")
		}
		ctx = logging.WithBlogID(ctx, blogID)

		posts, err := pub.ListPosts(ctx, blogID, blogger.ListOptions{
			MaxResults:  int64(intParam(params, "max_results", 10)),
			FetchDrafts: boolParam(params, "fetch_drafts", false),
		})
		if err != nil {
			return nil, err
		}

		out := make([]any, 0, len(posts))
		for _, p := range posts {
			out = append(out, map[string]any{
				"id":        p.ID,
				"title":     p.Title,
				"status":    p.Status,
				"url":       p.URL,
				"published": p.Published,
				"updated":   p.Updated,
			})
		}
		return map[string]any{"posts": out}, nil
	}
}

// requestParams unwraps the conventional {"request": {...}} nesting used by
// the typed actions, falling back to the flat parameter bag.
func requestParams(params map[string]any) map[string]any {
	if req, ok := params["request"].(map[string]any); ok {
		return req
	}
	return params
}

// buildContentWithImages appends image figures to post content.
// Each image: {url, caption?}.
func buildContentWithImages(bodyHTML string, images []map[string]any) string {
	if len(images) == 0 {
		return strings.TrimSpace(bodyHTML)
	}
	parts := []string{strings.TrimSpace(bodyHTML)}
	for _, img := range images {
		url := strings.TrimSpace(stringParam(img, "url", ""))
		if url == "" {
			continue
		}
		caption := strings.TrimSpace(stringParam(img, "caption", ""))
		if caption != "" {
			parts = append(parts,
				`<figure><img src="`+url+`" alt="`+escapeHTML(caption)+`"/>`+
					`<figcaption>`+escapeHTML(caption)+`</figcaption></figure>`)
		} else {
			parts = append(parts, `<figure><img src="`+url+`" alt=""/></figure>`)
		}
	}
	return strings.Join(parts, "\n\n")
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
