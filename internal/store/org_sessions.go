package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"orgsession/internal/session"
)

// Writer 返回绑定到浏览器会话 sid 的 session.Writer，每次写入覆盖该 sid 的组织会话。
func (s *Store) Writer(sid string) session.Writer {
	return session.WriterFunc(func(ctx context.Context, d session.Details) error {
		return s.UpsertOrgSession(ctx, sid, d)
	})
}

func (s *Store) UpsertOrgSession(ctx context.Context, sid string, d session.Details) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return ErrEmptySID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("序列化组织会话失败: %w", err)
	}
	expiresAt := s.now().Add(s.ttl).UTC()

	isAdmin := 0
	if d.IsAdmin {
		isAdmin = 1
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsertOrgSessionSQL(), sid, string(payload), d.OrgID, d.AppID, d.Email, isAdmin, expiresAt); err != nil {
		return fmt.Errorf("写入组织会话失败: %w", err)
	}
	return nil
}

// GetOrgSession 返回 sid 对应且在 now 时仍有效的组织会话。
func (s *Store) GetOrgSession(ctx context.Context, sid string, now time.Time) (session.Details, bool, error) {
	if s == nil || s.db == nil {
		return session.Details{}, false, errNotInitialized
	}
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return session.Details{}, false, nil
	}
	var payload string
	err := s.db.QueryRowContext(ctx, `
SELECT payload_json
FROM org_sessions
WHERE sid=? AND expires_at > ?
`, sid, now.UTC()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Details{}, false, nil
		}
		return session.Details{}, false, fmt.Errorf("查询组织会话失败: %w", err)
	}
	var d session.Details
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return session.Details{}, false, fmt.Errorf("解析组织会话失败: %w", err)
	}
	return d, true, nil
}

func (s *Store) DeleteOrgSession(ctx context.Context, sid string) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM org_sessions WHERE sid=?`, sid); err != nil {
		return fmt.Errorf("删除组织会话失败: %w", err)
	}
	return nil
}

// PurgeExpiredOrgSessions 删除在 now 之前过期的组织会话，返回删除行数。
func (s *Store) PurgeExpiredOrgSessions(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM org_sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("清理过期组织会话失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("获取清理行数失败: %w", err)
	}
	return n, nil
}

// StartPurgeLoop 按 interval 周期清理过期会话，直到 ctx 结束。
func (s *Store) StartPurgeLoop(ctx context.Context, interval time.Duration, onErr func(error)) {
	if s == nil || interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := s.PurgeExpiredOrgSessions(ctx, s.now()); err != nil && onErr != nil {
					onErr(err)
				}
			}
		}
	}()
}
