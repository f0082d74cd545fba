package cms

// APIPost is the CMS wire representation of a post. Fields the CMS omits decode to zero values.
type APIPost struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Excerpt       string     `json:"excerpt"`
	Slug          string     `json:"slug"`
	FeaturedImage string     `json:"featuredImage"`
	PublishDate   string     `json:"publishDate"`
	Status        string     `json:"status"`
	AuthorID      string     `json:"authorId"`
	CreatedAt     string     `json:"createdAt"`
	UpdatedAt     string     `json:"updatedAt"`
	SEO           SEO        `json:"seo"`
	Categories    []Category `json:"categories"`
	Tags          []Tag      `json:"tags"`
}

type SEO struct {
	Title           string `json:"title"`
	MetaDescription string `json:"metaDescription"`
	FocusKeyword    string `json:"focusKeyword"`
	Slug            string `json:"slug"`
}

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Pagination struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

type PostsPage struct {
	Posts      []APIPost  `json:"posts"`
	Pagination Pagination `json:"pagination"`
}

type ListParams struct {
	Page     int
	Limit    int
	Category string
}

const (
	RedirectTypeURL  = "url"
	RedirectTypePost = "post"
)

// Redirect tells clients where a post went. A url redirect carries Target.URL, a post redirect
// carries Target.PostID and Target.Slug. Status 410 needs no target.
type Redirect struct {
	Type       string          `json:"type" validate:"required,oneof=url post"`
	HTTPStatus int             `json:"httpStatus" validate:"oneof=301 302 307 308 410"`
	Target     *RedirectTarget `json:"target,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

type RedirectTarget struct {
	URL    string `json:"url,omitempty"`
	PostID string `json:"postId,omitempty"`
	Slug   string `json:"slug,omitempty"`
	Title  string `json:"title,omitempty"`
}

// PostResult is the outcome of a slug lookup. Success false with a Redirect is a tombstone; success
// false without one is a plain not-found.
type PostResult struct {
	Success  bool      `json:"success"`
	Post     *APIPost  `json:"data,omitempty"`
	Redirect *Redirect `json:"redirect,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func (r *PostResult) IsTombstone() bool {
	return r != nil && !r.Success && r.Redirect != nil
}

type postsEnvelope struct {
	Success bool       `json:"success"`
	Data    *PostsPage `json:"data"`
	Error   string     `json:"error"`
}

type postEnvelope struct {
	Success bool     `json:"success"`
	Data    *APIPost `json:"data"`
	Error   string   `json:"error"`
}
