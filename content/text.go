package content

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	ExcerptLength  = 200
	WordsPerMinute = 200
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	breakPattern      = regexp.MustCompile(`(?i)<br\s*/?>`)
	lineBreakPattern  = regexp.MustCompile(`[\r\n]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	paragraphPattern  = regexp.MustCompile(`(?i)</p>\s*<p>`)
	trailingWord      = regexp.MustCompile(`\s+\S*$`)
	slugInvalid       = regexp.MustCompile(`[^\w\s-]`)
	slugSpaces        = regexp.MustCompile(`\s+`)
	slugDashes        = regexp.MustCompile(`-+`)
	digitsPattern     = regexp.MustCompile(`[^0-9]`)
)

// WIB is Western Indonesia Time. Indonesia has no daylight saving, so a fixed zone is exact.
var WIB = time.FixedZone("WIB", 7*60*60)

var indonesianMonths = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// StripHTML drops markup and collapses whitespace. Tags become word separators.
func StripHTML(in string) string {
	out := tagPattern.ReplaceAllString(in, " ")
	out = whitespacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// ExtractExcerpt returns the plain text of content, cut at a word boundary with a trailing ellipsis
// when it is longer than maxLength runes.
func ExtractExcerpt(content string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = ExcerptLength
	}

	plain := StripHTML(content)
	if utf8.RuneCountInString(plain) <= maxLength {
		return plain
	}

	cut := string([]rune(plain)[:maxLength])
	cut = trailingWord.ReplaceAllString(cut, "")

	return cut + "..."
}

func ReadTime(content string) string {
	words := len(strings.Fields(StripHTML(content)))
	minutes := int(math.Ceil(float64(words) / WordsPerMinute))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%d menit", minutes)
}

// NormalizeHTML collapses line-break noise in post markup. The result is not sanitized.
func NormalizeHTML(in string) string {
	out := breakPattern.ReplaceAllString(in, " ")
	out = lineBreakPattern.ReplaceAllString(out, " ")
	out = whitespacePattern.ReplaceAllString(out, " ")
	out = paragraphPattern.ReplaceAllString(out, "</p><p>")
	return strings.TrimSpace(out)
}

func FormatDate(t time.Time) string {
	t = t.In(WIB)
	return fmt.Sprintf("%d %s %d", t.Day(), indonesianMonths[t.Month()-1], t.Year())
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseIndonesianDate reads dates such as "15 Desember 2024" as midnight UTC.
func ParseIndonesianDate(raw string) (time.Time, bool) {
	parts := strings.Fields(strings.ToLower(raw))
	if len(parts) != 3 {
		return time.Time{}, false
	}

	month := 0
	for i, name := range indonesianMonths {
		if strings.ToLower(name) == parts[1] {
			month = i + 1
			break
		}
	}
	if month == 0 {
		return time.Time{}, false
	}

	t, err := time.Parse("2006-1-2", fmt.Sprintf("%s-%d-%s", parts[2], month, parts[0]))
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

// CreateSlug lowercases text, drops everything except word characters, spaces and hyphens, and
// joins words with single hyphens.
func CreateSlug(text string) string {
	out := strings.ToLower(text)
	out = slugInvalid.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	out = slugSpaces.ReplaceAllString(out, "-")
	out = slugDashes.ReplaceAllString(out, "-")
	return out
}

// NumericID keeps the digits of a CMS identifier such as "post_123". Zero when there are none.
func NumericID(raw string) int {
	digits := digitsPattern.ReplaceAllString(raw, "")
	if digits == "" {
		return 0
	}

	id, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return id
}
