package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/quillagent/quill/internal/draft"
)

func runPush(args []string) error {
	fs := flag.NewFlagSet("push", flag.ExitOnError)
	publish := fs.Bool("publish", false, "publish immediately instead of saving as draft")
	postID := fs.String("post-id", "", "update this post instead of the one in front matter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: quill push <draft.md> [--publish] [--post-id ID]")
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	d, err := draft.Parse(data)
	if err != nil {
		return err
	}

	if d.Front.BlogID == "" || d.Front.BlogID == "YOUR_BLOG_ID" {
		return fmt.Errorf("set blog_id in front matter (run 'quill actions execute blog_list_blogs' to find it)")
	}

	title := d.Front.Title
	if title == "" {
		title = titleFromFilename(path)
	}

	content, err := draft.ContentToHTML(d.Content)
	if err != nil {
		return fmt.Errorf("convert content: %w", err)
	}

	cfg := loadConfig()
	client := newAPIClient(cfg.APIBase)
	ctx := context.Background()

	// Local image paths upload through the server; URLs pass through.
	images, err := resolveImages(ctx, client, d.Images, filepath.Dir(path))
	if err != nil {
		return err
	}

	targetPost := *postID
	if targetPost == "" {
		targetPost = d.Front.PostID
	}

	if targetPost != "" {
		request := map[string]any{
			"blog_id": d.Front.BlogID,
			"post_id": targetPost,
			"title":   title,
			"labels":  toAnySlice(d.Front.Labels),
		}
		if content != "" {
			request["content"] = content
		}
		if len(images) > 0 {
			request["images"] = images
		}
		result, err := client.executeAction(ctx, "blog_update_post", map[string]any{"request": request})
		if err != nil {
			return err
		}
		fmt.Printf("Updated post: %v (id=%v, status=%v)\n", result["title"], result["id"], result["status"])
		if url, ok := result["url"].(string); ok && url != "" {
			fmt.Println("URL:", url)
		}
		return nil
	}

	isDraft := true
	if d.Front.Draft != nil {
		isDraft = *d.Front.Draft
	}
	if *publish {
		isDraft = false
	}
	if content == "" {
		content = "(No content yet)"
	}

	request := map[string]any{
		"blog_id": d.Front.BlogID,
		"title":   title,
		"content": content,
		"labels":  toAnySlice(d.Front.Labels),
		"draft":   isDraft,
	}
	if len(images) > 0 {
		request["images"] = images
	}
	result, err := client.executeAction(ctx, "blog_create_post", map[string]any{"request": request})
	if err != nil {
		return err
	}
	fmt.Printf("Created post: %v (id=%v, status=%v)\n", result["title"], result["id"], result["status"])
	if url, ok := result["url"].(string); ok && url != "" {
		fmt.Println("URL:", url)
	}
	fmt.Printf("Tip: add 'post_id: %v' to front matter to update this post next time.\n", result["id"])
	return nil
}

func runPull(args []string) error {
	fs := flag.NewFlagSet("pull", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: quill pull <draft.md>")
	}
	path := fs.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	d, err := draft.Parse(data)
	if err != nil {
		return err
	}
	if d.Front.BlogID == "" || d.Front.BlogID == "YOUR_BLOG_ID" {
		return fmt.Errorf("set blog_id in front matter")
	}
	if d.Front.PostID == "" {
		return fmt.Errorf("set post_id in front matter (create the post first, then add its id)")
	}

	cfg := loadConfig()
	client := newAPIClient(cfg.APIBase)

	result, err := client.executeAction(context.Background(), "blog_get_post", map[string]any{
		"blog_id": d.Front.BlogID,
		"post_id": d.Front.PostID,
	})
	if err != nil {
		return err
	}

	if title, ok := result["title"].(string); ok && title != "" {
		d.Front.Title = title
	}
	if content, ok := result["content"].(string); ok {
		d.Content = content
	}

	out, err := d.Render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	fmt.Printf("Pulled post into %s: %s\n", path, d.Front.Title)
	return nil
}

// resolveImages uploads local image files via blog_upload_image and replaces
// their paths with the returned URLs.
func resolveImages(ctx context.Context, client *apiClient, images []draft.Image, baseDir string) ([]any, error) {
	var out []any
	for _, img := range images {
		url := img.URL
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			local := filepath.Join(baseDir, url)
			if _, err := os.Stat(local); err == nil {
				result, err := client.executeAction(ctx, "blog_upload_image", map[string]any{
					"file_path": local,
				})
				if err != nil {
					return nil, fmt.Errorf("upload %s: %w", local, err)
				}
				if u, ok := result["url"].(string); ok {
					url = u
				}
			}
		}
		entry := map[string]any{"url": url}
		if img.Caption != "" {
			entry["caption"] = img.Caption
		}
		out = append(out, entry)
	}
	return out, nil
}

// titleFromFilename turns "my-first-post.md" into "My First Post".
func titleFromFilename(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	words := strings.FieldsFunc(stem, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func toAnySlice(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}
