// Package migrations embeds the store schema into the binary so an
// aggregation run can create or upgrade messdaten.db without the SQL files
// being present next to the executable.
package migrations

import (
	"embed"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
