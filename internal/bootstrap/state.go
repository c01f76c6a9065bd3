package bootstrap

// State 是 bootstrap 状态机的状态。
//
// 成功路径：Resolving → Establishing → Enriching → Committed；任一阶段失败进入 Failed。
// Committed 与 Failed 为终态，不做任何自动重试。
type State int

const (
	StateResolving State = iota
	StateEstablishing
	StateEnriching
	StateCommitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateEstablishing:
		return "establishing"
	case StateEnriching:
		return "enriching"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed
}

// Observer 接收每一次状态迁移。
type Observer func(from State, to State)

type machine struct {
	state    State
	observer Observer
}

func (m *machine) advance(to State) {
	from := m.state
	if from.Terminal() {
		return
	}
	m.state = to
	if m.observer != nil {
		m.observer(from, to)
	}
}
