package manager

import (
	"embed"
	"io/fs"
)

// Bundles are stored as extensions/<browser>-manager-extension/.
//
//go:embed all:extensions
var bundled embed.FS

// Bundled returns the manager extension bundles shipped with the binary,
// rooted so that each browser's bundle is a top-level directory.
func Bundled() fs.FS {
	sub, err := fs.Sub(bundled, "extensions")
	if err != nil {
		panic(err)
	}
	return sub
}
