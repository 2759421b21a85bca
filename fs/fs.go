// Package appfs embeds the static assets the app needs at runtime:
// goose SQL migrations, email templates and the common-passwords list.
package appfs

import "embed"

//go:embed assets migrations templates
var FS embed.FS
