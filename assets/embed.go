// Package assets embeds the demo page served at the server root.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed web
var webFS embed.FS

// Web returns the demo page files rooted at web/.
func Web() fs.FS {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	return sub
}
