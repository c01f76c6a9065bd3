// Package store 负责数据库连接、迁移与按浏览器会话保存的组织会话，业务层只处理 session.Details。
package store

import (
	"database/sql"
	"strings"
	"time"
)

// DefaultSessionTTL 是组织会话在未显式配置时的有效期。
const DefaultSessionTTL = 12 * time.Hour

type Store struct {
	db      *sql.DB
	dialect Dialect
	ttl     time.Duration
	now     func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		dialect: DialectMySQL,
		ttl:     DefaultSessionTTL,
		now:     time.Now,
	}
}

func (s *Store) SetDialect(d Dialect) {
	if strings.TrimSpace(string(d)) == "" {
		return
	}
	s.dialect = d
}

// SetSessionTTL 设置新写入会话的有效期；非正数被忽略。
func (s *Store) SetSessionTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.ttl = ttl
}

func (s *Store) DB() *sql.DB {
	return s.db
}
