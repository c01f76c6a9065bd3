package store

import (
	"context"
	"database/sql"
)

// EnsureSQLiteSchema 幂等地执行 sqlite 迁移，测试与单机部署直接调用。
func EnsureSQLiteSchema(db *sql.DB) error {
	return ApplyMigrations(context.Background(), db, DialectSQLite)
}
