package session

import (
	"context"
	"errors"
	"sync"
)

// Memory 是进程级的会话容器：显式持有、单写者，由 bootstrap 通过 Writer 写入，其余调用方只读快照。
type Memory struct {
	mu      sync.RWMutex
	current *Details
	writes  uint64
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SetSessionDetails(ctx context.Context, d Details) error {
	if m == nil {
		return errors.New("session store 未初始化")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := d
	cp.Extra = cloneExtra(d.Extra)

	m.mu.Lock()
	m.current = &cp
	m.writes++
	m.mu.Unlock()
	return nil
}

// Current 返回当前会话的副本；尚未建立会话时 ok=false。
func (m *Memory) Current() (Details, bool) {
	if m == nil {
		return Details{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Details{}, false
	}
	cp := *m.current
	cp.Extra = cloneExtra(m.current.Extra)
	return cp, true
}

// Writes 返回累计写入次数。
func (m *Memory) Writes() uint64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Clear 清空当前会话（登出）；不计入写入次数。
func (m *Memory) Clear() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

func cloneExtra(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
