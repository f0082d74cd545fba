package content

// Post is the display shape of a CMS post. Text fields are already sanitized and safe to embed.
type Post struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Slug         string   `json:"slug"`
	Excerpt      string   `json:"excerpt"`
	Content      string   `json:"content"`
	Image        string   `json:"image"`
	Category     string   `json:"category"`
	CategorySlug string   `json:"categorySlug"`
	Author       string   `json:"author"`
	Date         string   `json:"date"`
	PublishedAt  string   `json:"publishedAt,omitempty"`
	ReadTime     string   `json:"readTime"`
	Tags         []string `json:"tags"`
	Featured     bool     `json:"featured,omitempty"`
	SEO          SEO      `json:"seo"`
}

type SEO struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"focusKeywords"`
}

type Category struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
	Icon  string `json:"icon"`
}

type PageInfo struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalPosts  int  `json:"totalCount"`
	HasNext     bool `json:"hasNextPage"`
	HasPrev     bool `json:"hasPreviousPage"`
}

const (
	DefaultCategory = "Umum"
	DefaultIcon     = "BookOpen"
)

var categoryIcons = map[string]string{
	"Panduan Skripsi":    "BookOpen",
	"Tips Produktivitas": "Target",
	"Metodologi":         "Lightbulb",
	"Academic Writing":   "TrendingUp",
	"Mental Health":      "User",
	"Presentasi":         "User",
}

func CategoryIcon(name string) string {
	if icon, ok := categoryIcons[name]; ok {
		return icon
	}
	return DefaultIcon
}

// SourceDate is the machine-readable publish time when known, else the display date.
func (p Post) SourceDate() string {
	if p.PublishedAt != "" {
		return p.PublishedAt
	}
	return p.Date
}
