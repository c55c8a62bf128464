// pkg/types/common.go
package types

import (
	"errors"
	"fmt"
	"time"
)

// MediaType 是 Git LFS 协议规定的 Content-Type
const MediaType = "application/vnd.git-lfs+json"

// Operation 是 Batch 请求声明的操作类型
type Operation string

const (
	OperationUpload   Operation = "upload"
	OperationDownload Operation = "download"
	OperationVerify   Operation = "verify"
)

func (o Operation) String() string { return string(o) }

// IsValid reports whether o is one of the three recognized operations.
func (o Operation) IsValid() bool {
	switch o {
	case OperationUpload, OperationDownload, OperationVerify:
		return true
	}
	return false
}

var ErrInvalidRequest = errors.New("invalid request")

// ObjectSpec 是请求里的一个对象 {oid, size}
// 指针字段用于区分 "缺失" 和 "零值"
type ObjectSpec struct {
	Oid  *string `json:"oid"`
	Size *int64  `json:"size"`
}

// BatchRequest 对应 POST /:user/:repo/objects/batch 的请求体
type BatchRequest struct {
	Operation *string      `json:"operation"`
	Objects   []ObjectSpec `json:"objects"`
}

// Validate checks the structural shape of the request. It does not check
// whether the operation is a recognized one; callers do that separately so
// the two failures stay distinguishable.
func (r *BatchRequest) Validate() error {
	if r.Operation == nil {
		return fmt.Errorf("%w: operation is required", ErrInvalidRequest)
	}
	if r.Objects == nil {
		return fmt.Errorf("%w: objects is required", ErrInvalidRequest)
	}
	for i, obj := range r.Objects {
		if obj.Oid == nil {
			return fmt.Errorf("%w: objects[%d].oid is required", ErrInvalidRequest, i)
		}
		if obj.Size == nil {
			return fmt.Errorf("%w: objects[%d].size is required", ErrInvalidRequest, i)
		}
		if *obj.Size < 0 {
			return fmt.Errorf("%w: objects[%d].size must be >= 0", ErrInvalidRequest, i)
		}
	}
	return nil
}

// Op 返回请求的操作 (调用前需先 Validate)
func (r *BatchRequest) Op() Operation {
	if r.Operation == nil {
		return ""
	}
	return Operation(*r.Operation)
}

// Action 是返回给客户端的一个可执行动作
type Action struct {
	Href      string            `json:"href"`
	ExpiresAt time.Time         `json:"expires_at"`
	Header    map[string]string `json:"header"`
}

// Actions 按操作名索引
type Actions map[Operation]*Action

// ObjectError 是单个对象的错误 (例如下载时对象不存在)
type ObjectError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ObjectResult 是响应里的一个对象，Actions 与 Error 二选一
type ObjectResult struct {
	Oid     string       `json:"oid"`
	Size    int64        `json:"size"`
	Actions Actions      `json:"actions,omitempty"`
	Error   *ObjectError `json:"error,omitempty"`
}

// BatchResponse 对应 Batch 接口的 200 响应
type BatchResponse struct {
	Objects []ObjectResult `json:"objects"`
}

// VerifyRequest 是 POST /:user/:repo/objects/verify 的请求体
type VerifyRequest struct {
	Oid  *string `json:"oid"`
	Size *int64  `json:"size"`
}

// Validate 要求 oid 和 size 都存在，且 size 不为负
func (r *VerifyRequest) Validate() error {
	if r.Oid == nil || *r.Oid == "" {
		return fmt.Errorf("%w: oid is required", ErrInvalidRequest)
	}
	if r.Size == nil {
		return fmt.Errorf("%w: size is required", ErrInvalidRequest)
	}
	if *r.Size < 0 {
		return fmt.Errorf("%w: size must be >= 0", ErrInvalidRequest)
	}
	return nil
}

// SSHAuthResponse 是 git-lfs-authenticate 写回给客户端的 JSON
type SSHAuthResponse struct {
	Header map[string]string `json:"header"`
	Href   string            `json:"href"`
}
