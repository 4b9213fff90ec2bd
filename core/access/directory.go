package access

import (
	"maps"
	"slices"
	"strings"

	"github.com/kabili207/modgate/core"
)

// Directory maps configured channel keys to channel identifiers.
type Directory struct {
	channels map[string]string
	primary  string
}

// NewDirectory creates a directory over table. primary is the key used
// when a post names no required channels.
func NewDirectory(table map[string]string, primary string) *Directory {
	d := &Directory{channels: make(map[string]string, len(table)), primary: primary}
	for k, v := range table {
		if !strings.HasPrefix(v, "@") {
			v = "@" + v
		}
		d.channels[k] = v
	}
	return d
}

// Primary returns the primary channel key.
func (d *Directory) Primary() string {
	return d.primary
}

// Resolve returns the chat for key. Unknown keys are used as "@name".
func (d *Directory) Resolve(key string) core.ChatID {
	if id, ok := d.channels[key]; ok {
		return core.ChatID(id)
	}
	if strings.HasPrefix(key, "@") {
		return core.ChatID(key)
	}
	return core.ChatID("@" + key)
}

// Identifiers returns every configured channel identifier, sorted.
func (d *Directory) Identifiers() []string {
	return slices.Sorted(maps.Values(d.channels))
}

// URL returns the public link to the channel behind key.
func (d *Directory) URL(key string) string {
	return "https://t.me/" + strings.TrimPrefix(string(d.Resolve(key)), "@")
}
