package store

import "errors"

var (
	errNotInitialized = errors.New("store 未初始化")
	// ErrEmptySID 表示缺少浏览器会话 id，无法定位组织会话。
	ErrEmptySID = errors.New("浏览器会话 id 为空")
)
