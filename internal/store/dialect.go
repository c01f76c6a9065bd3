package store

import (
	"fmt"
	"strings"
)

// Dialect 区分 MySQL 与 SQLite 在 upsert、迁移记录表上的语法差异。
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// ParseDialect 把配置里的 db.driver 映射到方言（大小写与空白不敏感）。
func ParseDialect(driver string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(driver))); d {
	case DialectMySQL, DialectSQLite:
		return d, nil
	default:
		return "", fmt.Errorf("不支持的 db.driver：%s", driver)
	}
}

func (d Dialect) migrationsDir() string {
	return "migrations/" + string(d)
}

func (d Dialect) schemaMigrationsDDL() string {
	if d == DialectSQLite {
		return `CREATE TABLE IF NOT EXISTS schema_migrations (
  version TEXT NOT NULL PRIMARY KEY,
  applied_at DATETIME NOT NULL
)`
	}
	return `CREATE TABLE IF NOT EXISTS schema_migrations (
  version VARCHAR(255) PRIMARY KEY,
  applied_at DATETIME NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
}

// upsertOrgSessionSQL 以 sid 为键写入或覆盖一行组织会话，占位符顺序：
// sid, payload_json, org_id, app_id, email, is_admin, expires_at。
func (d Dialect) upsertOrgSessionSQL() string {
	const insert = `
INSERT INTO org_sessions(sid, payload_json, org_id, app_id, email, is_admin, expires_at, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
`
	if d == DialectSQLite {
		return insert + `ON CONFLICT(sid) DO UPDATE SET
  payload_json=excluded.payload_json,
  org_id=excluded.org_id,
  app_id=excluded.app_id,
  email=excluded.email,
  is_admin=excluded.is_admin,
  expires_at=excluded.expires_at,
  updated_at=CURRENT_TIMESTAMP
`
	}
	return insert + `ON DUPLICATE KEY UPDATE
  payload_json=VALUES(payload_json),
  org_id=VALUES(org_id),
  app_id=VALUES(app_id),
  email=VALUES(email),
  is_admin=VALUES(is_admin),
  expires_at=VALUES(expires_at),
  updated_at=CURRENT_TIMESTAMP
`
}
