// Package version 提供构建信息，便于 healthz 与日志输出版本指纹。
package version

import "runtime/debug"

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// 通过 -ldflags "-X orgsession/internal/version.Version=..." 注入。
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func Info() BuildInfo {
	out := BuildInfo{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	// go install 安装的二进制没有 ldflags，退回模块版本与 vcs 信息。
	if out.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		out.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if out.Commit == "none" && s.Value != "" {
				out.Commit = s.Value
			}
		case "vcs.time":
			if out.Date == "unknown" && s.Value != "" {
				out.Date = s.Value
			}
		}
	}
	return out
}
