package ygggo_pg

import (
	"context"
	"database/sql"

	mysql "github.com/go-sql-driver/mysql"
)

// NewMySQLConnector returns a connector opening MySQL connections through
// go-sql-driver/mysql. Clean recycling releases every user level lock the
// session still holds.
func NewMySQLConnector(config *mysql.Config) *SQLConnector {
	cfg := config.Clone()
	return &SQLConnector{
		Open: func(context.Context) (*sql.DB, error) {
			connector, err := mysql.NewConnector(cfg)
			if err != nil {
				return nil, err
			}
			return sql.OpenDB(connector), nil
		},
		VerifySQL: "SELECT 1",
		CleanSQL:  "DO RELEASE_ALL_LOCKS()",
	}
}
