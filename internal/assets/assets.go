// Package assets bundles the static web client and the mime-type icon
// set into the binary.
package assets

import (
	"embed"
	"strings"
)

//go:embed web icons
var files embed.FS

// Get returns the embedded asset at path, rooted at this package
// (e.g. "web/index.html" or "icons/file.svg").
func Get(path string) ([]byte, bool) {
	b, err := files.ReadFile(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, false
	}
	return b, true
}
