// Package migrations embute os arquivos SQL do goose no binário.
package migrations

import "embed"

// FS contém as migrações na raiz (diretório ".").
//
//go:embed *.sql
var FS embed.FS
