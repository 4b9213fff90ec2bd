package post

import (
	"fmt"
	"strings"
)

// Category is a configured browse category.
type Category struct {
	Key   string
	Label string
}

// Categories is the ordered category table.
type Categories []Category

// DefaultCategories is the category table used when none is configured.
var DefaultCategories = Categories{
	{Key: "ganhaki", Label: "🎮 Ganhaki"},
	{Key: "mapping", Label: "🗺 Mapping"},
	{Key: "other", Label: "📦 Other"},
	{Key: "timers", Label: "⏱ Timers"},
	{Key: "effects", Label: "✨ Effects"},
}

// Has reports whether key is a configured category.
func (c Categories) Has(key string) bool {
	for _, cat := range c {
		if cat.Key == key {
			return true
		}
	}
	return false
}

// Label returns the display label for key, or the key itself if unknown.
func (c Categories) Label(key string) string {
	for _, cat := range c {
		if cat.Key == key {
			return cat.Label
		}
	}
	return key
}

// ParseCategories parses "key:Label" entries. A bare key is its own label.
func ParseCategories(entries []string) (Categories, error) {
	var out Categories
	seen := make(map[string]bool)
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		key, label, ok := strings.Cut(e, ":")
		key = strings.TrimSpace(key)
		if !ok {
			label = key
		}
		if key == "" {
			return nil, fmt.Errorf("category %q: empty key", e)
		}
		if seen[key] {
			return nil, fmt.Errorf("category %q: duplicate key", key)
		}
		seen[key] = true
		out = append(out, Category{Key: key, Label: strings.TrimSpace(label)})
	}
	return out, nil
}
