package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

const (
	// dev 环境下 MySQL 容器常与服务同时启动，等待它就绪。
	devMySQLWait    = 30 * time.Second
	pingTimeout     = 2 * time.Second
	initialBackoff  = 200 * time.Millisecond
	maxPingBackoff  = 2 * time.Second
	sqliteBusyMilli = 5000
)

// OpenDB 按 driver 打开数据库并返回对应方言。
func OpenDB(env string, driver string, mysqlDSN string, sqlitePath string) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, "", err
	}
	var db *sql.DB
	switch dialect {
	case DialectSQLite:
		db, err = OpenSQLite(sqlitePath)
	case DialectMySQL:
		db, err = OpenMySQL(env, mysqlDSN)
	}
	if err != nil {
		return nil, "", err
	}
	return db, dialect, nil
}

func OpenMySQL(env string, dsn string) (*sql.DB, error) {
	dsn, err := normalizeMySQLDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open(mysql): %w", err)
	}
	// org_sessions 只有按主键的读写与定期清理，连接池不需要很大。
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	var wait time.Duration
	if env == "dev" {
		wait = devMySQLWait
	}
	if err := pingUntilReady(context.Background(), db, wait, time.Sleep); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// normalizeMySQLDSN 强制 parseTime 与 UTC，保证 expires_at 的比较与 sqlite 一致。
func normalizeMySQLDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", errors.New("db.dsn 不能为空")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql.ParseDSN: %w", err)
	}
	if cfg.DBName == "" {
		return "", errors.New("db.dsn 未包含数据库名")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	cfg.Params["time_zone"] = "'+00:00'"
	return cfg.FormatDSN(), nil
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// pingUntilReady 在累计退避不超过 wait 的前提下重试 Ping；wait 为 0 时只尝试一次。
// 权限或库不存在这类配置错误不重试。
func pingUntilReady(ctx context.Context, db pinger, wait time.Duration, sleep func(time.Duration)) error {
	backoff := initialBackoff
	var slept time.Duration
	for attempt := 1; ; attempt++ {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := db.PingContext(pctx)
		cancel()
		if err == nil {
			return nil
		}
		if permanentMySQLError(err) || slept+backoff > wait || ctx.Err() != nil {
			return fmt.Errorf("db.Ping（第 %d 次）: %w", attempt, err)
		}
		if attempt == 1 {
			slog.Info("等待 MySQL 就绪", "timeout", wait.String(), "err", err)
		}
		sleep(backoff)
		slept += backoff
		backoff = min(backoff*2, maxPingBackoff)
	}
}

func permanentMySQLError(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	switch myErr.Number {
	case 1044, 1045: // ER_DBACCESS_DENIED_ERROR, ER_ACCESS_DENIED_ERROR
		return true
	case 1049: // ER_BAD_DB_ERROR
		return true
	default:
		return false
	}
}

func OpenSQLite(path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite_path 不能为空")
	}
	if dir := sqliteDataDir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建 sqlite 数据目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql.Open(sqlite): %w", err)
	}
	// 单连接：清理任务与 bootstrap 写入不会互相触发 SQLITE_BUSY。
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Ping(sqlite): %w", err)
	}
	_, _ = db.Exec(fmt.Sprintf(`PRAGMA busy_timeout=%d`, sqliteBusyMilli))
	_, _ = db.Exec(`PRAGMA journal_mode=WAL`)
	return db, nil
}

// sqliteDataDir 返回需要预先创建的目录；内存库与当前目录返回空串。
func sqliteDataDir(path string) string {
	filePath := strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(filePath, '?'); i >= 0 {
		filePath = filePath[:i]
	}
	if filePath == "" || filePath == ":memory:" || strings.HasPrefix(filePath, ":memory:") {
		return ""
	}
	dir := filepath.Dir(filePath)
	if dir == "." {
		return ""
	}
	return dir
}
