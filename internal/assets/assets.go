package assets

import "embed"

// WebFS holds the status page served at the root of the web server.
//
//go:embed web/*.html
var WebFS embed.FS
