package blogger

// Blog is one blog owned by the authenticated user.
type Blog struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Post is the subset of a Blogger post this system works with.
type Post struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	Status    string   `json:"status"`
	URL       string   `json:"url,omitempty"`
	Published string   `json:"published,omitempty"`
	Updated   string   `json:"updated,omitempty"`
}

// PostInput is the full post body sent on create/update. Update callers
// merge the existing post into this before sending.
type PostInput struct {
	Title   string
	Content string
	Labels  []string
}

// ListOptions filters a post listing.
type ListOptions struct {
	MaxResults  int64
	FetchDrafts bool
}
