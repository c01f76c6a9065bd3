package obs

import (
	"expvar"
	"sync/atomic"
	"time"
)

var (
	bootstrapRuns    int64
	bootstrapCommits int64
	bootstrapShared  int64
	bootstrapActive  int64

	bootstrapFailures = expvar.NewMap("bootstrap_failures_total")
)

func init() {
	expvar.Publish("bootstrap_runs_total", expvar.Func(func() any {
		return atomic.LoadInt64(&bootstrapRuns)
	}))
	expvar.Publish("bootstrap_commits_total", expvar.Func(func() any {
		return atomic.LoadInt64(&bootstrapCommits)
	}))
	expvar.Publish("bootstrap_shared_total", expvar.Func(func() any {
		return atomic.LoadInt64(&bootstrapShared)
	}))
	expvar.Publish("bootstrap_active", expvar.Func(func() any {
		return atomic.LoadInt64(&bootstrapActive)
	}))
	expvar.Publish("bootstrap_last_commit_unix", expvar.Func(func() any {
		return atomic.LoadInt64(&bootstrapLastCommitUnix)
	}))
}

var bootstrapLastCommitUnix int64

// TrackBootstrap 记录一次真正执行的 bootstrap，并返回需要 defer 调用的收尾函数。
func TrackBootstrap() func() {
	atomic.AddInt64(&bootstrapRuns, 1)
	atomic.AddInt64(&bootstrapActive, 1)
	return func() {
		atomic.AddInt64(&bootstrapActive, -1)
	}
}

func RecordBootstrapCommit() {
	atomic.AddInt64(&bootstrapCommits, 1)
	atomic.StoreInt64(&bootstrapLastCommitUnix, time.Now().Unix())
}

// RecordBootstrapFailure 按失败分类计数（unauthenticated/forbidden/not-found/unhandled...）。
func RecordBootstrapFailure(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	bootstrapFailures.Add(kind, 1)
}

// RecordBootstrapShared 记录复用了进行中 bootstrap 结果的调用。
func RecordBootstrapShared() {
	atomic.AddInt64(&bootstrapShared, 1)
}

// BootstrapFailures 返回某一分类的累计失败次数。
func BootstrapFailures(kind string) int64 {
	v, ok := bootstrapFailures.Get(kind).(*expvar.Int)
	if !ok || v == nil {
		return 0
	}
	return v.Value()
}

// BootstrapCommits 返回累计提交次数。
func BootstrapCommits() int64 {
	return atomic.LoadInt64(&bootstrapCommits)
}
