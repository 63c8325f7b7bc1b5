package appfs

import "embed"

// FS holds the SQL migrations, email templates and other static assets.
//go:embed all:assets migrations
var FS embed.FS
