package sitemap

import (
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/tugasin/tugasin-blog/content"
)

const (
	Namespace       = "http://www.sitemaps.org/schemas/sitemap/0.9"
	DefaultChunk    = 200
	ContentType     = "application/xml"
	DefaultCategory = "tips"
	lastmodLayout   = "2006-01-02T15:04:05.000Z"
)

type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	Xmlns   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Xmlns    string         `xml:"xmlns,attr"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// Builder renders sitemaps.org 0.9 documents for the site's blog posts.
type Builder struct {
	siteURL string
	now     func() time.Time
}

func NewBuilder(siteURL string) *Builder {
	return &Builder{
		siteURL: strings.TrimRight(siteURL, "/"),
		now:     time.Now,
	}
}

func (b *Builder) PostURL(post content.Post) string {
	category := post.Category
	if category == "" {
		category = DefaultCategory
	}

	slug := post.Slug
	if slug == "" {
		slug = content.CreateSlug(post.Title)
	}

	return fmt.Sprintf("%s/blog/%s/%s", b.siteURL, content.CreateSlug(category), slug)
}

func (b *Builder) URLSet(posts []content.Post) ([]byte, error) {
	now := b.now()

	set := urlSet{Xmlns: Namespace, URLs: make([]urlEntry, 0, len(posts))}
	for _, post := range posts {
		set.URLs = append(set.URLs, urlEntry{
			Loc:        b.PostURL(post),
			LastMod:    ParseDate(post.SourceDate(), now),
			ChangeFreq: "weekly",
			Priority:   "0.8",
		})
	}

	return encode(set)
}

// Index lists chunk documents sitemap-post-1.xml through sitemap-post-N.xml for posts split by size.
// Each lastmod is the newest post date in its chunk, so the body only changes with the content.
func (b *Builder) Index(posts []content.Post, size int) ([]byte, error) {
	chunks := ChunkCount(len(posts), size)

	index := sitemapIndex{Xmlns: Namespace, Sitemaps: make([]sitemapEntry, 0, chunks)}
	for i := 1; i <= chunks; i++ {
		entry := sitemapEntry{Loc: fmt.Sprintf("%s/%s", b.siteURL, ChunkName(i))}
		if newest, ok := newestDate(Chunk(posts, i, size)); ok {
			entry.LastMod = newest.UTC().Format(lastmodLayout)
		}
		index.Sitemaps = append(index.Sitemaps, entry)
	}

	return encode(index)
}

func newestDate(posts []content.Post) (time.Time, bool) {
	var newest time.Time
	for _, post := range posts {
		if t, ok := parsePostDate(post.SourceDate()); ok && t.After(newest) {
			newest = t
		}
	}
	return newest, !newest.IsZero()
}

func ChunkName(page int) string {
	return fmt.Sprintf("sitemap-post-%d.xml", page)
}

func encode(doc interface{}) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

func EmptyURLSet() []byte {
	return []byte(xml.Header + `<urlset xmlns="` + Namespace + `">` + "\n</urlset>\n")
}

func EmptyIndex() []byte {
	return []byte(xml.Header + `<sitemapindex xmlns="` + Namespace + `">` + "\n</sitemapindex>\n")
}

// Chunk returns the posts of a 1-based page. Pages past the end are empty.
func Chunk(posts []content.Post, page, size int) []content.Post {
	if size <= 0 {
		size = DefaultChunk
	}
	if page < 1 {
		return nil
	}

	start := (page - 1) * size
	if start >= len(posts) {
		return nil
	}

	end := min(start+size, len(posts))
	return posts[start:end]
}

func ChunkCount(total, size int) int {
	if size <= 0 {
		size = DefaultChunk
	}
	return (total + size - 1) / size
}

// ParseDate normalizes a post date to an ISO-8601 UTC timestamp with milliseconds. Timestamps,
// plain dates and Indonesian long dates are understood; anything else reads as now.
func ParseDate(raw string, now time.Time) string {
	if t, ok := parsePostDate(raw); ok {
		return t.UTC().Format(lastmodLayout)
	}
	return now.UTC().Format(lastmodLayout)
}

func parsePostDate(raw string) (time.Time, bool) {
	if t, ok := content.ParseTimestamp(raw); ok {
		return t, true
	}
	return content.ParseIndonesianDate(raw)
}

// ETag is a strong validator derived from the document body.
func ETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
