// Package all registers every storage backend with the storage factory.
package all

import (
	_ "github.com/jsdealy/bmdb/internal/storage/mssql"
	_ "github.com/jsdealy/bmdb/internal/storage/postgres"
	_ "github.com/jsdealy/bmdb/internal/storage/sqlite"
)
