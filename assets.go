// Package tracenation provides embedded assets for the server binary.
package tracenation

import "embed"

// TemplateFS holds the page templates served by the HTTP layer.
//
//go:embed all:web/templates
var TemplateFS embed.FS
