package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotEnvPathEnv 指定 .env 的显式路径；设置后只加载该文件，且文件必须存在。
const DotEnvPathEnv = "ORGSESSION_DOTENV"

// LoadDotEnv 加载 .env 并覆盖已有环境变量。
// 未设置 ORGSESSION_DOTENV 时依次尝试工作目录与可执行文件目录，命中第一个即停止。
func LoadDotEnv() error {
	if explicit := os.Getenv(DotEnvPathEnv); explicit != "" {
		if err := godotenv.Overload(explicit); err != nil {
			return fmt.Errorf("%s=%s: %w", DotEnvPathEnv, explicit, err)
		}
		return nil
	}
	for _, p := range dotEnvCandidates() {
		loaded, err := loadDotEnvFile(p)
		if err != nil {
			return fmt.Errorf("加载 .env 失败（%s）: %w", p, err)
		}
		if loaded {
			return nil
		}
	}
	return nil
}

func dotEnvCandidates() []string {
	out := []string{".env"}
	exe, err := os.Executable()
	if err != nil {
		return out
	}
	p := filepath.Join(filepath.Dir(exe), ".env")
	if abs, err := filepath.Abs(".env"); err == nil && abs == p {
		return out
	}
	return append(out, p)
}

// loadDotEnvFile 文件不存在时返回 (false, nil)。
func loadDotEnvFile(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, godotenv.Overload(path)
}
