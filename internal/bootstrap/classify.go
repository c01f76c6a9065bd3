package bootstrap

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"orgsession/internal/backend"
)

// Kind 是失败分类，决定浏览器被引导到哪个恢复页面。
type Kind string

const (
	KindNone              Kind = ""
	KindUnauthenticated   Kind = "unauthenticated"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not-found"
	KindMembershipMissing Kind = "membership-missing"
	// KindUnhandled 覆盖其他状态码与没有状态码的失败：不跳转，但必须可观测。
	KindUnhandled Kind = "unhandled"
)

const (
	LoginPath         = "/api/v1/login"
	LoginRedirectKey  = "redirect_url"
	ForbiddenPage     = "/error?status=403&title=403&subTitle=Not authorized"
	NotFoundPage      = "/error?status=404&title=404&subTitle=Sorry, the page you visited does not exist."
	loginRedirectBase = LoginPath + "?" + LoginRedirectKey + "="
)

// ErrMembershipNotFound 表示成员列表里找不到当前用户，会话建立被拒绝。
var ErrMembershipNotFound = errors.New("成员列表中未找到当前用户")

// StageError 标记失败发生在哪个阶段。
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("bootstrap %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// FailedStage 返回错误链上记录的阶段；没有时 ok=false。
func FailedStage(err error) (State, bool) {
	var se *StageError
	if errors.As(err, &se) && se != nil {
		return se.Stage, true
	}
	return StateFailed, false
}

// Classify 依据失败请求的 HTTP 状态码给出分类。
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrMembershipNotFound) {
		return KindMembershipMissing
	}
	status, ok := backend.StatusCode(err)
	if !ok {
		return KindUnhandled
	}
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	default:
		return KindUnhandled
	}
}

// RedirectTarget 返回该分类对应的跳转地址；unhandled 没有跳转目标。
func RedirectTarget(kind Kind, currentURL string) (string, bool) {
	switch kind {
	case KindUnauthenticated:
		return loginRedirectBase + url.QueryEscape(currentURL), true
	case KindForbidden, KindMembershipMissing:
		return ForbiddenPage, true
	case KindNotFound:
		return NotFoundPage, true
	default:
		return "", false
	}
}
