package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"lfsgate/pkg/app"
	"lfsgate/pkg/storage"
	"lfsgate/pkg/types"

	"golang.org/x/sync/errgroup"
)

// MissingObjectMessage 是下载时对象不存在的逐对象错误信息
const MissingObjectMessage = "Object does not exist on the server"

// BatchService 处理 Git LFS Batch API 的协商请求
type BatchService struct {
	app *app.App
}

func NewBatchService(application *app.App) *BatchService {
	return &BatchService{app: application}
}

// Batch 校验请求、检查权限，然后为每个对象并发生成动作
// 返回的对象顺序与请求一致
func (s *BatchService) Batch(ctx context.Context, user, repo, authorization string, req *types.BatchRequest) (*types.BatchResponse, error) {
	// 1. 结构校验
	if err := req.Validate(); err != nil {
		return nil, ValidationError("%s", err.Error())
	}

	// 2. 操作类型校验
	op := req.Op()
	if !op.IsValid() {
		return nil, ValidationError("unsupported operation %q", op)
	}

	// 3. 认证与授权
	if err := s.authorize(ctx, op, user, repo, authorization); err != nil {
		return nil, err
	}

	// 4. 逐对象派发
	// 每个任务写入自己的槽位，结果顺序与完成顺序无关
	// 客户端断开不取消已派发的任务，响应要么完整返回要么整体失败
	dispatchCtx := context.WithoutCancel(ctx)
	results := make([]types.ObjectResult, len(req.Objects))

	var g errgroup.Group
	for i, obj := range req.Objects {
		g.Go(func() error {
			res, err := s.dispatch(dispatchCtx, op, user, repo, *obj.Oid, *obj.Size)
			if err != nil {
				return fmt.Errorf("object %s: %w", *obj.Oid, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &types.BatchResponse{Objects: results}, nil
}

func (s *BatchService) authorize(ctx context.Context, op types.Operation, user, repo, authorization string) error {
	hasHeader := authorization != ""

	if s.app.Private && !hasHeader {
		return AuthenticationError("credentials required", true)
	}

	canRead, err := s.app.Authenticator.CanRead(ctx, user, repo, authorization)
	if err != nil {
		return err
	}
	if !canRead {
		if hasHeader {
			return AuthorizationError("forbidden")
		}
		return AuthenticationError("credentials required", true)
	}

	// 没有 Authorization 头时不做写权限检查，只依赖上面的读权限结果
	// 私有模式下这类请求在第 3 步已经被拒绝
	if op == types.OperationUpload && hasHeader {
		canWrite, err := s.app.Authenticator.CanWrite(ctx, user, repo, authorization)
		if err != nil {
			return err
		}
		if !canWrite {
			return AuthorizationError("forbidden")
		}
	}
	return nil
}

func (s *BatchService) dispatch(ctx context.Context, op types.Operation, user, repo, oid string, size int64) (types.ObjectResult, error) {
	result := types.ObjectResult{Oid: oid, Size: size}
	direct, isDirect := s.app.Store.(storage.DirectStore)

	switch op {
	case types.OperationUpload:
		var upload *types.Action
		var err error
		if isDirect {
			upload, err = direct.UploadAction(ctx, user, repo, oid, size)
		} else {
			upload, err = s.tokenAction(types.OperationUpload, user, repo, oid, ObjectHref(s.app.BaseURL, user, repo, oid))
		}
		if err != nil {
			return result, err
		}
		verify, err := s.verifyAction(user, repo)
		if err != nil {
			return result, err
		}
		result.Actions = types.Actions{
			types.OperationUpload: upload,
			types.OperationVerify: verify,
		}

	case types.OperationDownload:
		exists, err := storage.Exists(ctx, s.app.Store, user, repo, oid)
		if err != nil {
			return result, err
		}
		if !exists {
			result.Error = &types.ObjectError{Code: http.StatusNotFound, Message: MissingObjectMessage}
			return result, nil
		}
		var download *types.Action
		if isDirect {
			download, err = direct.DownloadAction(ctx, user, repo, oid, size)
		} else {
			download, err = s.tokenAction(types.OperationDownload, user, repo, oid, ObjectHref(s.app.BaseURL, user, repo, oid))
		}
		if err != nil {
			return result, err
		}
		result.Actions = types.Actions{types.OperationDownload: download}

	case types.OperationVerify:
		verify, err := s.verifyAction(user, repo)
		if err != nil {
			return result, err
		}
		result.Actions = types.Actions{types.OperationVerify: verify}
	}

	return result, nil
}

// verifyAction 总是指向本服务，存储后端无法回答大小校验
func (s *BatchService) verifyAction(user, repo string) (*types.Action, error) {
	return s.tokenAction(types.OperationVerify, user, repo, "", VerifyHref(s.app.BaseURL, user, repo))
}

// tokenAction 签发一个作用域 token 并包装成指向本服务的动作
func (s *BatchService) tokenAction(op types.Operation, user, repo, oid, href string) (*types.Action, error) {
	grant, err := s.app.Tokens.Mint(op, user, repo, oid)
	if err != nil {
		return nil, err
	}
	return &types.Action{
		Href:      href,
		ExpiresAt: grant.ExpiresAt,
		Header:    map[string]string{"Authorization": TokenScheme + grant.Token},
	}, nil
}

// RepoHref 返回 <base_url><user>/<repo>
func RepoHref(baseURL, user, repo string) string {
	return baseURL + url.PathEscape(user) + "/" + url.PathEscape(repo)
}

// ObjectHref 返回 <base_url><user>/<repo>/objects/<oid>
func ObjectHref(baseURL, user, repo, oid string) string {
	return RepoHref(baseURL, user, repo) + "/objects/" + url.PathEscape(oid)
}

// VerifyHref 返回 <base_url><user>/<repo>/objects/verify
func VerifyHref(baseURL, user, repo string) string {
	return RepoHref(baseURL, user, repo) + "/objects/verify"
}
