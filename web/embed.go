package web

import "embed"

// Content holds the embedded live look-angle page.
//
//go:embed index.html
var Content embed.FS
