// Package all registers every destination backend.
package all

import (
	_ "mongrel/internal/storage/mssql"
	_ "mongrel/internal/storage/mysql"
	_ "mongrel/internal/storage/postgres"
	_ "mongrel/internal/storage/sqlite"
)
