package auth

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// LoadPublicKeys 读取公钥集合
// path 可以是单个文件 (authorized_keys 格式，允许多行)，也可以是目录 (读取其中所有 .pub 文件)
func LoadPublicKeys(path string) ([]ssh.PublicKey, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat public key path: %w", err)
	}

	if !info.IsDir() {
		return parseKeyFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read public key dir: %w", err)
	}

	var keys []ssh.PublicKey
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pub") {
			continue
		}
		parsed, err := parseKeyFile(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}
		keys = append(keys, parsed...)
	}
	return keys, nil
}

func parseKeyFile(file string) ([]ssh.PublicKey, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read public key %s: %w", file, err)
	}

	var keys []ssh.PublicKey
	rest := bytes.TrimSpace(data)
	for len(rest) > 0 {
		key, _, _, next, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			return nil, fmt.Errorf("parse public key %s: %w", file, err)
		}
		keys = append(keys, key)
		rest = bytes.TrimSpace(next)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no public key found in %s", file)
	}
	return keys, nil
}
