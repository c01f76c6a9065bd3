package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StatusError 表示后端返回了非 2xx 状态码。
type StatusError struct {
	Method      string
	Path        string
	StatusCode  int
	Detail      string
	BodySnippet string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	if e.BodySnippet != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.BodySnippet)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.StatusCode)
}

// TransportError 表示请求没有拿到 HTTP 响应（连接失败、超时、取消等），没有状态码。
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StatusCode 取出错误链上的 HTTP 状态码；没有状态码时 ok=false。
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) && se != nil {
		return se.StatusCode, true
	}
	return 0, false
}

func newStatusError(method string, path string, status int, body []byte) *StatusError {
	e := &StatusError{Method: method, Path: path, StatusCode: status}

	var parsed struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Detail != "":
			e.Detail = parsed.Detail
		case parsed.Message != "":
			e.Detail = parsed.Message
		case parsed.Error != "":
			e.Detail = parsed.Error
		}
		if e.Detail != "" {
			return e
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	e.BodySnippet = msg
	return e
}
