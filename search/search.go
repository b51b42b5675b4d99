// Package search discovers time-tag segment-archive files under a local or
// object-store URI using TileDB's VFS, so the CLI can be pointed at a run
// directory rather than an explicit file list.
package search

import (
	"path/filepath"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// trawl recursively walks uri, collecting files whose basename matches
// pattern.
func trawl(vfs *tiledb.VFS, pattern string, uri string, items []string) []string {
	dirs, files, err := vfs.List(uri)
	if err != nil {
		panic(err)
	}

	for _, file := range files {
		match, err := filepath.Match(pattern, filepath.Base(file))
		if err != nil {
			panic(err)
		}
		if match {
			items = append(items, file)
		}
	}

	for _, dir := range dirs {
		items = trawl(vfs, pattern, dir, items)
	}

	return items
}

// FindSegmentSources recursively searches uri for "*.tt" segment-stream
// archive files (one per PCE). configURI, if non-empty, names a TileDB config file for
// accessing a permission-constrained object store.
func FindSegmentSources(uri, configURI string) []string {
	var (
		config *tiledb.Config
		err    error
	)

	if configURI == "" {
		config, err = tiledb.NewConfig()
	} else {
		config, err = tiledb.LoadConfig(configURI)
	}
	if err != nil {
		panic(err)
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		panic(err)
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		panic(err)
	}
	defer vfs.Free()

	return trawl(vfs, "*.tt", uri, make([]string, 0))
}
