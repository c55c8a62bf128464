package sshd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"lfsgate/pkg/auth"
	"lfsgate/pkg/service"
	"lfsgate/pkg/types"

	"golang.org/x/crypto/ssh"
)

// ServiceUser 是唯一允许登录的用户名
const ServiceUser = "git"

const (
	// extAuthorization 在 ssh.Permissions 中保存桥接出来的 HTTP Authorization
	extAuthorization = "lfs-authorization"

	handshakeTimeout = 30 * time.Second
	authTimeout      = 10 * time.Second
)

// errRejected 是所有认证失败的统一结果，不区分 "未知公钥" 和 "内部错误"
var errRejected = errors.New("ssh: authentication rejected")

// Server 是 SSH 认证与命令网关
// 每个连接各自持有认证和执行状态，进程级共享的只有只读配置
type Server struct {
	config  *ssh.ServerConfig
	auth    auth.Authenticator
	baseURL string

	mu       sync.Mutex
	listener net.Listener
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// LoadHostKey 读取 PEM 格式的主机私钥
func LoadHostKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read host key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse host key: %w", err)
	}
	return signer, nil
}

// New 构造网关；baseURL 必须以 "/" 结尾
func New(hostKey ssh.Signer, authenticator auth.Authenticator, baseURL string) *Server {
	s := &Server{auth: authenticator, baseURL: baseURL}
	s.config = &ssh.ServerConfig{
		PublicKeyCallback:         s.probePublicKey,
		VerifiedPublicKeyCallback: s.verifiedPublicKey,
		AuthLogCallback: func(conn ssh.ConnMetadata, method string, err error) {
			if err != nil && method != "none" {
				slog.Debug("ssh auth attempt failed",
					slog.String("user", conn.User()),
					slog.String("method", method),
					slog.String("remote", conn.RemoteAddr().String()),
				)
			}
		},
	}
	s.config.AddHostKey(hostKey)
	return s
}

// probePublicKey 在签名交换之前被调用：用户名不对直接拒绝，其它一律放行
// 放行只表示 "可以用这把公钥试"，身份在签名验证之后才确定
func (s *Server) probePublicKey(conn ssh.ConnMetadata, _ ssh.PublicKey) (*ssh.Permissions, error) {
	if conn.User() != ServiceUser {
		return nil, errRejected
	}
	return &ssh.Permissions{}, nil
}

// verifiedPublicKey 在 x/crypto/ssh 验证签名之后调用
// Authenticator 返回非空 Authorization 才接受会话
func (s *Server) verifiedPublicKey(conn ssh.ConnMetadata, key ssh.PublicKey, _ *ssh.Permissions, sigAlgo string) (*ssh.Permissions, error) {
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	header, err := s.auth.CheckSSHAuthorization(ctx, auth.SSHProof{
		KeyAlgo: key.Type(),
		KeyBlob: key.Marshal(),
		SigAlgo: sigAlgo,
	})
	if err != nil {
		slog.Warn("ssh authorization check failed",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("err", err.Error()),
		)
		return nil, errRejected
	}
	if header == "" {
		slog.Info("ssh key rejected",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("fingerprint", ssh.FingerprintSHA256(key)),
		)
		return nil, errRejected
	}
	return &ssh.Permissions{Extensions: map[string]string{extAuthorization: header}}, nil
}

// Serve 在 l 上接受连接直到 Shutdown
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	if s.closed.Load() {
		l.Close()
		return nil
	}

	slog.Info("SSH gateway listening", "addr", l.Addr().String())
	for {
		nConn, err := l.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(nConn)
		}()
	}
}

// ListenAndServe 监听 addr
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown 停止接受新连接，并等待进行中的连接结束或 ctx 到期
func (s *Server) Shutdown(ctx context.Context) error {
	s.closed.Store(true)
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleConn(nConn net.Conn) {
	defer nConn.Close()

	// 握手 (含认证) 必须在限定时间内完成
	_ = nConn.SetDeadline(time.Now().Add(handshakeTimeout))
	sconn, chans, reqs, err := ssh.NewServerConn(nConn, s.config)
	if err != nil {
		slog.Debug("ssh handshake failed",
			slog.String("remote", nConn.RemoteAddr().String()),
			slog.String("err", err.Error()),
		)
		return
	}
	defer sconn.Close()
	_ = nConn.SetDeadline(time.Time{})

	header := sconn.Permissions.Extensions[extAuthorization]
	slog.Info("ssh session established",
		slog.String("remote", sconn.RemoteAddr().String()),
		slog.String("client", string(sconn.ClientVersion())),
	)

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			slog.Warn("ssh channel accept failed", slog.String("err", err.Error()))
			continue
		}
		go s.handleSession(header, channel, requests)
	}
}

// handleSession 只处理 exec 请求，其它请求一律拒绝
func (s *Server) handleSession(header string, channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			continue
		}
		if req.WantReply {
			_ = req.Reply(true, nil)
		}

		status := s.exec(header, payload.Command, channel)
		_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
		return
	}
}

// exec 执行一条命令，把结果写进 channel，返回退出码
func (s *Server) exec(header, raw string, channel ssh.Channel) uint32 {
	cmd, err := ParseCommand(raw)
	if err != nil {
		slog.Info("ssh unknown command", slog.String("command", raw))
		// 未知命令只回显提示，会话正常结束
		_, _ = fmt.Fprintf(channel, "Unknown command: %s", raw)
		return 0
	}

	resp := types.SSHAuthResponse{
		Header: map[string]string{"Authorization": header},
		Href:   service.RepoHref(s.baseURL, cmd.User, cmd.Repo),
	}
	if err := json.NewEncoder(channel).Encode(resp); err != nil {
		slog.Warn("ssh write failed", slog.String("err", err.Error()))
		return 1
	}
	slog.Info("ssh credentials issued",
		slog.String("user", cmd.User),
		slog.String("repo", cmd.Repo),
		slog.String("operation", cmd.Operation.String()),
	)
	return 0
}
