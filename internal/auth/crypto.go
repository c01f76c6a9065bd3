package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	cookieHashKeyInfo  = "orgsession cookie hash key"
	cookieBlockKeyInfo = "orgsession cookie block key"
)

func NewRandomToken(prefix string, bytesLen int) (string, error) {
	if bytesLen < 16 {
		bytesLen = 16
	}
	b := make([]byte, bytesLen)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("生成随机数失败: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// DeriveCookieKeys 从会话密钥派生 cookie 的签名 key（64 字节）与加密 key（32 字节，AES-256）。
func DeriveCookieKeys(secret string) (hashKey []byte, blockKey []byte, err error) {
	if len(secret) < 16 {
		return nil, nil, errors.New("会话密钥长度至少 16 位")
	}
	hashKey = make([]byte, 64)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(cookieHashKeyInfo)), hashKey); err != nil {
		return nil, nil, fmt.Errorf("派生 cookie hash key 失败: %w", err)
	}
	blockKey = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(cookieBlockKeyInfo)), blockKey); err != nil {
		return nil, nil, fmt.Errorf("派生 cookie block key 失败: %w", err)
	}
	return hashKey, blockKey, nil
}
