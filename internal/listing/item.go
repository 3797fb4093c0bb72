// CLAUDE:SUMMARY Defines Item and the configurable extraction Rule with identity key derivation.
// Package listing turns the rendered markup of the tracked list into items.
package listing

import (
	"fmt"
	"regexp"
	"strings"
)

// Item is one entry of the tracked list. Text fields are nil when the
// corresponding sub-element is absent. Key is the identity used for change
// detection; empty means the item cannot be tracked.
type Item struct {
	Name   *string `json:"name"`
	Source *string `json:"source"`
	Age    *string `json:"age"`
	Key    string  `json:"key,omitempty"`
}

// HasKey reports whether the item carries an identity key.
func (it Item) HasKey() bool { return it.Key != "" }

func (it Item) String() string {
	key := it.Key
	if key == "" {
		key = "N/A"
	}
	return fmt.Sprintf("--- %s ---\n  source: %s\n  age: %s\n  link: %s",
		orNA(it.Name), orNA(it.Source), orNA(it.Age), key)
}

func orNA(s *string) string {
	if s == nil {
		return "N/A"
	}
	return *s
}

// Rule says where to find each field inside the list markup and how to
// derive the identity key.
type Rule struct {
	Item   string `yaml:"item"`
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Age    string `yaml:"age"`
	Avatar string `yaml:"avatar"`

	// StripMarkers are removed from the name before trimming.
	StripMarkers []string `yaml:"strip_markers"`
	// KeyDelimiter splits the avatar src; the token follows its first occurrence.
	KeyDelimiter string `yaml:"key_delimiter"`
	// KeyTemplate receives the token in place of {token}.
	KeyTemplate string `yaml:"key_template"`
}

// DefaultRule matches the trade.padre.gg tracker grid.
func DefaultRule() Rule {
	return Rule{
		Item:         ".css-1j135c3 div[role='gridcell']",
		Name:         "h2.css-1wz1i5j",
		Source:       ".css-1r9kwv0 > span.css-e9h5tp",
		Age:          "span.css-1wutgjf",
		Avatar:       ".MuiAvatar-img",
		StripMarkers: []string{"•"},
		KeyDelimiter: "SOLANA-",
		KeyTemplate:  "https://trade.padre.gg/trade/solana/{token}",
	}
}

var tokenPrefix = regexp.MustCompile(`^[A-Za-z0-9]+`)

// IdentityKey derives the key from an avatar source. It returns "" when
// the delimiter is absent or nothing alphanumeric follows it.
func (r Rule) IdentityKey(src string) string {
	if src == "" || r.KeyDelimiter == "" {
		return ""
	}
	parts := strings.Split(src, r.KeyDelimiter)
	if len(parts) < 2 {
		return ""
	}
	token := tokenPrefix.FindString(parts[1])
	if token == "" {
		return ""
	}
	return strings.ReplaceAll(r.KeyTemplate, "{token}", token)
}

func (r Rule) cleanName(s string) string {
	for _, m := range r.StripMarkers {
		s = strings.ReplaceAll(s, m, "")
	}
	return strings.TrimSpace(s)
}
