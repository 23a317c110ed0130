// Package migrations embeds the SQL schema so it is applied regardless of
// the working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
