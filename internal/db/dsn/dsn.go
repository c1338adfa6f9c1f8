// Package dsn provides Data Source Name construction utilities for database connections.
package dsn

import (
	"fmt"

	"github.com/asiradnan/saml/internal/config"
)

// Create builds the Data Source Name from the configuration. For the sqlite
// engine the name is the database file path and no DSN assembly is needed.
func Create(dbCfg *config.Config) string {
	if dbCfg.DB.GormEngine == "sqlite" {
		return dbCfg.DB.Name
	}

	out := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		dbCfg.DB.User,
		dbCfg.DB.Password,
		dbCfg.DB.Host,
		dbCfg.DB.Port,
		dbCfg.DB.Name,
		dbCfg.DB.Extras,
	)

	return out
}
