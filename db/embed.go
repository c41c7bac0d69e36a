// Package db embeds the schema migrations, one folder per database driver.
package db

import "embed"

//go:embed migrations
var Migrations embed.FS

// MigrationsRoot is the folder inside Migrations holding the driver folders.
const MigrationsRoot = "migrations"
