// CLAUDE:SUMMARY Renders a listing item as sanitized Telegram HTML.
package fanout

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/authwatch/internal/listing"
)

var strict = bluemonday.StrictPolicy()

// Format renders an item as Telegram HTML. Scraped text is stripped of
// markup and escaped.
func Format(it listing.Item) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(clean(it.Name))
	b.WriteString("</b>\n")
	b.WriteString("Source: " + clean(it.Source) + "\n")
	b.WriteString("Age: " + clean(it.Age))
	if it.HasKey() {
		link := strict.Sanitize(it.Key)
		b.WriteString("\n<a href=\"" + link + "\">" + link + "</a>")
	}
	return b.String()
}

func clean(s *string) string {
	if s == nil {
		return "N/A"
	}
	out := strings.TrimSpace(strict.Sanitize(*s))
	if out == "" {
		return "N/A"
	}
	return out
}
