package sshd

import (
	"errors"
	"strings"

	"lfsgate/pkg/types"
)

// AuthenticateCommand 是 Git LFS 客户端在 SSH 上调用的命令
const AuthenticateCommand = "git-lfs-authenticate"

var ErrUnknownCommand = errors.New("unknown command")

// Command 是解析后的 git-lfs-authenticate 调用
type Command struct {
	User      string
	Repo      string // 保留客户端给出的 .git 后缀
	Operation types.Operation
}

// ParseCommand 解析 "git-lfs-authenticate <user>/<repo>[.git] <upload|download> [...]"
// 命令名大小写不敏感，第三个参数之后的内容忽略
// 路径两侧的引号和开头的 "/" 会被去掉 (ssh://host/user/repo 形式的 remote 会带上它们)
func ParseCommand(raw string) (Command, error) {
	fields := strings.Fields(raw)
	if len(fields) < 3 || !strings.EqualFold(fields[0], AuthenticateCommand) {
		return Command{}, ErrUnknownCommand
	}

	path := strings.Trim(fields[1], `'"`)
	path = strings.TrimPrefix(path, "/")
	user, repo, ok := strings.Cut(path, "/")
	if !ok || user == "" || repo == "" || strings.Contains(repo, "/") {
		return Command{}, ErrUnknownCommand
	}

	op := types.Operation(fields[2])
	if op != types.OperationUpload && op != types.OperationDownload {
		return Command{}, ErrUnknownCommand
	}

	return Command{User: user, Repo: repo, Operation: op}, nil
}
