// Package bootstrap 实现组织会话的建立流程：Resolver → Establisher → Enricher 严格串行，
// 任一阶段失败立即终止并由 Classify 决定恢复页面；只有三个请求全部成功才会提交一次会话。
package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"orgsession/internal/backend"
	"orgsession/internal/config"
	"orgsession/internal/cookies"
	"orgsession/internal/obs"
	"orgsession/internal/session"
)

// Backend 是 bootstrap 依赖的后端能力，*backend.Client 实现了它。
type Backend interface {
	NewJar(seed []*http.Cookie) (*cookies.Jar, error)
	LoadApp(ctx context.Context, jar *cookies.Jar) (session.SessionContext, error)
	SetOrganization(ctx context.Context, jar *cookies.Jar, sc session.SessionContext, csrfToken string) (backend.Establishment, error)
	ListMembers(ctx context.Context, jar *cookies.Jar, orgID string, csrfToken string) ([]backend.Member, error)
}

type Options struct {
	// AdminRole 为空时使用 config.DefaultAdminRole。
	AdminRole string
	Logger    *slog.Logger
	Observer  Observer
	Now       func() time.Time
	// Timeout 限制一次共享运行的总时长；0 表示只依赖后端客户端的请求超时。
	Timeout time.Duration
}

type Runner struct {
	be        Backend
	adminRole string
	logger    *slog.Logger
	observer  Observer
	now       func() time.Time
	timeout   time.Duration

	group singleflight.Group
}

func NewRunner(be Backend, opts Options) *Runner {
	r := &Runner{
		be:        be,
		adminRole: strings.TrimSpace(opts.AdminRole),
		logger:    opts.Logger,
		observer:  opts.Observer,
		now:       opts.Now,
		timeout:   opts.Timeout,
	}
	if r.adminRole == "" {
		r.adminRole = config.DefaultAdminRole
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Input 是一次 bootstrap 的浏览器侧输入。
type Input struct {
	// Cookies 是浏览器当前持有的后端 cookie，用于给本次运行的 jar 播种。
	Cookies []*http.Cookie
	// CurrentURL 是浏览器当前地址，未登录时作为登录后的回跳目标。
	CurrentURL string
}

// Outcome 是一次 bootstrap 的终态。
type Outcome struct {
	State State
	// FailedAt 是失败发生的阶段，仅在 State == StateFailed 时有意义。
	// 调用方在共享运行结束前放弃等待时为 StateFailed（阶段未知）。
	FailedAt State
	Kind     Kind
	// Redirect 为空表示不跳转（成功或 unhandled）。
	Redirect string
	Details  *session.Details
	// Cookies 是后端在本次运行中新下发或轮换的 cookie，需要回写给浏览器。
	Cookies []*http.Cookie
	Err     error
	// Shared 表示结果来自同一 key 上正在进行的另一次运行。
	Shared bool
}

func (o Outcome) Committed() bool {
	return o.State == StateCommitted
}

// Run 执行一次 bootstrap。同一 key 上的并发调用共享一次执行，只有执行者写入 w。
// State 为 StateFailed 时返回的 error 与 Outcome.Err 相同。
//
// 共享执行不继承首个调用方的取消：某个调用方放弃等待只影响它自己，
// 其余调用方仍拿到同一结果，执行本身照常提交。
func (r *Runner) Run(ctx context.Context, key string, in Input, w session.Writer) (Outcome, error) {
	if w == nil {
		return Outcome{}, errors.New("session writer 不能为空")
	}
	ch := r.group.DoChan(key, func() (any, error) {
		runCtx := context.WithoutCancel(ctx)
		if r.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, r.timeout)
			defer cancel()
		}
		return r.run(runCtx, in, w), nil
	})

	var out Outcome
	select {
	case <-ctx.Done():
		out = Outcome{State: StateFailed, FailedAt: StateFailed, Kind: KindUnhandled, Err: ctx.Err()}
	case res := <-ch:
		out = res.Val.(Outcome)
		out.Shared = res.Shared
		if out.Details != nil {
			d := *out.Details
			out.Details = &d
		}
		if res.Shared {
			obs.RecordBootstrapShared()
		}
	}

	if out.State == StateFailed {
		// 跳转目标取决于各调用方自己的当前地址。
		out.Redirect, _ = RedirectTarget(out.Kind, in.CurrentURL)
		return out, out.Err
	}
	return out, nil
}

func (r *Runner) run(ctx context.Context, in Input, w session.Writer) Outcome {
	done := obs.TrackBootstrap()
	defer done()

	m := &machine{state: StateResolving, observer: r.transition}

	jar, err := r.be.NewJar(in.Cookies)
	if err != nil {
		return r.fail(m, &StageError{Stage: StateResolving, Err: err})
	}

	sc, err := r.resolve(ctx, jar)
	if err != nil {
		return r.fail(m, err)
	}
	m.advance(StateEstablishing)

	user, csrfToken, err := r.establish(ctx, jar, sc)
	if err != nil {
		return r.fail(m, err)
	}
	m.advance(StateEnriching)

	details, err := r.enrich(ctx, jar, sc, user, csrfToken)
	if err != nil {
		return r.fail(m, err)
	}

	// 唯一提交点：此前任何失败都不会触达 Writer。
	if err := w.SetSessionDetails(ctx, details); err != nil {
		return r.fail(m, &StageError{Stage: StateEnriching, Err: err})
	}
	m.advance(StateCommitted)
	obs.RecordBootstrapCommit()

	r.logger.Info("组织会话已建立",
		"org_id", details.OrgID,
		"app_id", details.AppID,
		"is_admin", details.IsAdmin,
	)
	return Outcome{
		State:   StateCommitted,
		Details: &details,
		Cookies: jar.Changed(),
	}
}

// resolve 读取当前浏览器会话所属的组织与应用。
func (r *Runner) resolve(ctx context.Context, jar *cookies.Jar) (session.SessionContext, error) {
	sc, err := r.be.LoadApp(ctx, jar)
	if err != nil {
		return session.SessionContext{}, &StageError{Stage: StateResolving, Err: err}
	}
	return sc, nil
}

// establish 激活组织并把组织作用域合并到用户记录上。
// csrftoken 缺失时以空 token 继续，由后端拒绝。
func (r *Runner) establish(ctx context.Context, jar *cookies.Jar, sc session.SessionContext) (session.RawUserRecord, string, error) {
	csrfToken := jar.Get(cookies.CSRFTokenName)
	if csrfToken == "" {
		r.logger.Warn("csrftoken cookie 缺失，继续发起组织激活请求", "org_id", sc.OrgID)
	}
	est, err := r.be.SetOrganization(ctx, jar, sc, csrfToken)
	if err != nil {
		return nil, "", &StageError{Stage: StateEstablishing, Err: err}
	}
	user := est.User
	if user == nil {
		user = session.RawUserRecord{}
	}
	user[session.FieldOrgName] = est.OrgName
	user[session.FieldOrgID] = sc.OrgID
	user[session.FieldAppID] = sc.AppID
	return user, csrfToken, nil
}

// enrich 根据成员列表计算管理员标记，合并两个 cookie 值并归一化。
func (r *Runner) enrich(ctx context.Context, jar *cookies.Jar, sc session.SessionContext, user session.RawUserRecord, csrfToken string) (session.Details, error) {
	members, err := r.be.ListMembers(ctx, jar, sc.OrgID, csrfToken)
	if err != nil {
		return session.Details{}, &StageError{Stage: StateEnriching, Err: err}
	}
	member, ok := findMember(members, user.Email())
	if !ok {
		return session.Details{}, &StageError{Stage: StateEnriching, Err: ErrMembershipNotFound}
	}

	user[session.FieldIsAdmin] = member.Role == r.adminRole
	user[session.FieldZCode] = jar.Get(cookies.ZCodeName)
	user[session.FieldCSRFToken] = csrfToken

	d := session.Normalize(user)
	d.EstablishedAt = r.now().UTC()
	return d, nil
}

func findMember(members []backend.Member, email string) (backend.Member, bool) {
	for _, m := range members {
		if m.Email == email {
			return m, true
		}
	}
	return backend.Member{}, false
}

func (r *Runner) fail(m *machine, err error) Outcome {
	stage, _ := FailedStage(err)
	if stage == StateFailed {
		stage = m.state
	}
	m.advance(StateFailed)

	kind := Classify(err)
	obs.RecordBootstrapFailure(string(kind))
	status, _ := backend.StatusCode(err)
	if kind == KindUnhandled {
		r.logger.Error("bootstrap 失败（未分类）", "stage", stage.String(), "status", status, "err", err)
	} else {
		r.logger.Warn("bootstrap 失败", "stage", stage.String(), "kind", string(kind), "status", status, "err", err)
	}
	return Outcome{State: StateFailed, FailedAt: stage, Kind: kind, Err: err}
}

func (r *Runner) transition(from State, to State) {
	r.logger.Debug("bootstrap 状态迁移", "from", from.String(), "to", to.String())
	if r.observer != nil {
		r.observer(from, to)
	}
}
