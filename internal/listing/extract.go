// CLAUDE:SUMMARY Extracts listing items from rendered markup with goquery, skipping malformed items.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrExtraction wraps document-level failures. The polling loop treats it
// as transient.
var ErrExtraction = errors.New("listing: extraction failed")

// MarkupSource yields the current rendered markup. browser.Tab implements it.
type MarkupSource interface {
	HTML(ctx context.Context) (string, error)
}

// Extractor applies a Rule to rendered markup.
type Extractor struct {
	rule   Rule
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil logger uses slog.Default.
func NewExtractor(rule Rule, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{rule: rule, logger: logger}
}

// ExtractPage reads the markup from src and extracts it.
func (e *Extractor) ExtractPage(ctx context.Context, src MarkupSource) ([]Item, error) {
	markup, err := src.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read markup: %v", ErrExtraction, err)
	}
	return e.Extract(markup)
}

// Extract returns the items in document order. No matching items is an
// empty result, not an error. A malformed item is logged and skipped.
func (e *Extractor) Extract(markup string) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrExtraction, err)
	}

	items := []Item{}
	doc.Find(e.rule.Item).Each(func(i int, sel *goquery.Selection) {
		it, err := e.extractOne(sel)
		if err != nil {
			e.logger.Warn("listing: item skipped", "index", i, "error", err)
			return
		}
		items = append(items, it)
	})
	return items, nil
}

func (e *Extractor) extractOne(sel *goquery.Selection) (it Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	r := e.rule
	if name := first(sel, r.Name); name != nil {
		it.Name = ptr(r.cleanName(visibleText(name)))
	}
	if src := first(sel, r.Source); src != nil {
		it.Source = ptr(visibleText(src))
	}
	if age := first(sel, r.Age); age != nil {
		it.Age = ptr(visibleText(age))
	}
	if img := first(sel, r.Avatar); img != nil {
		if src, ok := img.Attr("src"); ok {
			it.Key = r.IdentityKey(src)
		}
	}
	return it, nil
}

// first returns the first match of selector under sel, or nil.
func first(sel *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return nil
	}
	m := sel.Find(selector).First()
	if m.Length() == 0 {
		return nil
	}
	return m
}

// hiddenContent matches nodes whose text a browser does not render.
const hiddenContent = `script, style, template, noscript, [hidden], [aria-hidden="true"],
	[style*="display:none"], [style*="display: none"],
	[style*="visibility:hidden"], [style*="visibility: hidden"]`

// visibleText approximates innerText on static markup: text under hidden
// nodes is dropped and whitespace runs collapse to one space.
func visibleText(sel *goquery.Selection) string {
	c := sel.Clone()
	c.Find(hiddenContent).Remove()
	return strings.Join(strings.Fields(c.Text()), " ")
}

func ptr(s string) *string { return &s }
