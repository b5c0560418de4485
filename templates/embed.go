// Package templates embeds the default configuration preset and prompt files.
package templates

import "embed"

//go:embed hatloop.yml PROMPT.md guardrails.md iteration.md.tmpl
var FS embed.FS
