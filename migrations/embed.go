// Package migrations compiles the hub's SQL migration files into the
// binary, so deployments never depend on loose .sql files next to the
// executable.
package migrations

import (
	"embed"

	"github.com/soundmesh/soundmesh-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
