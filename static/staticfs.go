// Package static bundles the stylesheet and icons served under /static/.
package static

import (
	"embed"
	"net/http"
)

//go:embed *.css *.svg
var files embed.FS

func FileSystem() http.FileSystem {
	return http.FS(files)
}
