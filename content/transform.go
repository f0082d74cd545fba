package content

import (
	"github.com/tugasin/tugasin-blog/cms"
	"github.com/tugasin/tugasin-blog/types"
	"github.com/tugasin/tugasin-blog/utils"
)

const DefaultImage = "https://images.unsplash.com/photo-1586339393565-32161f258eac?crop=entropy&cs=tinysrgb&fit=max&fm=jpg&q=80&w=1080"

const DefaultAuthor = "Admin"

// Transformer turns CMS wire posts into display posts. It holds no mutable state.
type Transformer struct {
	sanitizer     *Sanitizer
	fallbackImage string
	author        string
}

func NewTransformer(site *types.SiteConfig) *Transformer {
	t := &Transformer{
		sanitizer:     NewSanitizer(),
		fallbackImage: DefaultImage,
		author:        DefaultAuthor,
	}

	if site != nil {
		if img := SanitizeURL(site.FallbackImage); img != "" {
			t.fallbackImage = img
		}
		if site.DefaultAuthor != "" {
			t.author = site.DefaultAuthor
		}
	}

	return t
}

func (t *Transformer) Sanitizer() *Sanitizer {
	return t.sanitizer
}

func (t *Transformer) ToPost(raw cms.APIPost) Post {
	s := t.sanitizer

	category := DefaultCategory
	categorySlug := ""
	if len(raw.Categories) > 0 && raw.Categories[0].Name != "" {
		category = raw.Categories[0].Name
		categorySlug = raw.Categories[0].Slug
	}
	category = s.Text(category)
	if categorySlug == "" {
		categorySlug = CreateSlug(category)
	}

	body := s.HTML(NormalizeHTML(raw.Content))

	excerpt := raw.Excerpt
	if excerpt == "" {
		excerpt = ExtractExcerpt(body, ExcerptLength)
	}
	excerpt = s.Text(excerpt)

	title := s.Text(raw.Title)

	tags := make([]string, 0, len(raw.Tags))
	for _, tag := range raw.Tags {
		tags = append(tags, s.Text(tag.Name))
	}

	var keywords []string
	if raw.SEO.FocusKeyword != "" {
		keywords = []string{s.Text(raw.SEO.FocusKeyword)}
	} else {
		keywords = []string{}
	}

	date, publishedAt := t.date(raw)

	return Post{
		ID:           NumericID(raw.ID),
		Title:        title,
		Slug:         raw.Slug,
		Excerpt:      excerpt,
		Content:      body,
		Image:        t.image(raw.FeaturedImage),
		Category:     category,
		CategorySlug: categorySlug,
		Author:       s.Text(t.author),
		Date:         date,
		PublishedAt:  publishedAt,
		ReadTime:     ReadTime(body),
		Tags:         tags,
		SEO: SEO{
			Title:       utils.FirstNonEmpty(s.Text(raw.SEO.Title), title),
			Description: utils.FirstNonEmpty(s.Text(raw.SEO.MetaDescription), excerpt),
			Keywords:    keywords,
		},
	}
}

func (t *Transformer) ToPosts(raw []cms.APIPost) []Post {
	posts := make([]Post, 0, len(raw))
	for _, p := range raw {
		posts = append(posts, t.ToPost(p))
	}
	return posts
}

func (t *Transformer) image(featured string) string {
	if img := SanitizeURL(featured); img != "" {
		return img
	}
	return t.fallbackImage
}

func (t *Transformer) date(raw cms.APIPost) (string, string) {
	source := utils.FirstNonEmpty(raw.PublishDate, raw.CreatedAt)

	ts, ok := ParseTimestamp(source)
	if !ok {
		return t.sanitizer.Text(source), ""
	}

	return FormatDate(ts), ts.UTC().Format("2006-01-02T15:04:05.000Z")
}
