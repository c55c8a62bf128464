package auth

import (
	"context"
	"sync/atomic"
)

// StaticBridgeHeader 是 Static 在 SSH 校验通过时返回的 Authorization
const StaticBridgeHeader = "TEST"

// Static 是测试替身：读、写、SSH 三个开关可在运行时切换
// 开关使用 atomic，测试可以在服务运行时安全修改
type Static struct {
	Read     atomic.Bool
	Write    atomic.Bool
	SSHValid atomic.Bool
}

// NewStatic 返回三个开关全部打开的 Static
func NewStatic() *Static {
	s := &Static{}
	s.Read.Store(true)
	s.Write.Store(true)
	s.SSHValid.Store(true)
	return s
}

func (s *Static) CanRead(context.Context, string, string, string) (bool, error) {
	return s.Read.Load(), nil
}

func (s *Static) CanWrite(context.Context, string, string, string) (bool, error) {
	return s.Write.Load(), nil
}

func (s *Static) CheckSSHAuthorization(context.Context, SSHProof) (string, error) {
	if s.SSHValid.Load() {
		return StaticBridgeHeader, nil
	}
	return "", nil
}
