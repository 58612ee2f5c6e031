// Package simulate 提供 NetGear M4250 风格的 CLI 模拟器，用于联调与端到端测试
package simulate

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/switchctl/switchctl/pkg/logger"
)

// Server telnet（及可选 SSH）模拟服务
type Server struct {
	cfg    Config
	device *Device

	telnetLn net.Listener
	sshLn    net.Listener
	hostKey  ssh.Signer

	mu     sync.Mutex
	active int
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New 创建模拟服务
func New(cfg Config, f *Fixtures) *Server {
	return &Server{
		cfg:    cfg,
		device: NewDevice(f),
		conns:  make(map[net.Conn]struct{}),
	}
}

// StartFromFile 读取配置与素材并启动
func StartFromFile(path string) (*Server, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	fx, err := LoadFixtures(cfg.Fixtures)
	if err != nil {
		return nil, err
	}
	srv := New(*cfg, fx)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	return srv, nil
}

// Device 共享的设备状态
func (s *Server) Device() *Device { return s.device }

// TelnetAddr telnet 监听地址
func (s *Server) TelnetAddr() string {
	if s.telnetLn == nil {
		return ""
	}
	return s.telnetLn.Addr().String()
}

// SSHAddr SSH 监听地址，未启用时为空
func (s *Server) SSHAddr() string {
	if s.sshLn == nil {
		return ""
	}
	return s.sshLn.Addr().String()
}

// Start 启动监听
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.TelnetPort)))
	if err != nil {
		return fmt.Errorf("failed to listen telnet: %w", err)
	}
	s.telnetLn = ln
	go s.acceptLoop(ln, s.handleTelnet)
	logger.Infof("Simulate: telnet listening on %s", ln.Addr())

	if s.cfg.SSHPort < 0 {
		return nil
	}
	signer, err := loadOrCreateHostKey(s.cfg.HostKeyPath)
	if err != nil {
		s.Stop()
		return fmt.Errorf("failed to init host key: %w", err)
	}
	s.hostKey = signer
	sln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.SSHPort)))
	if err != nil {
		s.Stop()
		return fmt.Errorf("failed to listen ssh: %w", err)
	}
	s.sshLn = sln
	go s.acceptLoop(sln, s.handleSSH)
	logger.Infof("Simulate: ssh listening on %s", sln.Addr())
	return nil
}

// Stop 关闭监听与所有会话
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	for _, ln := range []net.Listener{s.telnetLn, s.sshLn} {
		if ln != nil {
			_ = ln.Close()
		}
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) acceptLoop(ln net.Listener, handle func(net.Conn)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(200 * time.Millisecond)
				continue
			}
			return
		}
		if s.device.Booting() {
			logger.Debugf("Simulate: refusing %s, stack is rebooting", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		s.mu.Lock()
		if s.closed || (s.cfg.MaxConn > 0 && s.active >= s.cfg.MaxConn) {
			s.mu.Unlock()
			_ = conn.Close()
			logger.Warnf("Simulate: reject connection from %s, max_conn exceeded", conn.RemoteAddr())
			continue
		}
		s.active++
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() {
				_ = c.Close()
				s.mu.Lock()
				s.active--
				delete(s.conns, c)
				s.mu.Unlock()
			}()
			handle(c)
		}(conn)
	}
}

// idleConn 每次读取前刷新空闲超时
type idleConn struct {
	net.Conn
	idle time.Duration
}

func (c idleConn) Read(p []byte) (int, error) {
	if c.idle > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.idle))
	}
	return c.Conn.Read(p)
}

func (s *Server) handleTelnet(nc net.Conn) {
	logger.Debugf("Simulate: telnet session from %s", nc.RemoteAddr())
	rw := idleConn{Conn: nc, idle: time.Duration(s.cfg.IdleSeconds) * time.Second}
	if err := newShell(s.cfg, s.device, rw).run(true); err != nil {
		logger.Debugf("Simulate: telnet session ended: %v", err)
	}
}

func (s *Server) handleSSH(nc net.Conn) {
	srvCfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if meta.User() == s.cfg.Username && string(password) == s.cfg.Password {
				return nil, nil
			}
			logger.Debugf("Simulate: ssh auth failed for %q", meta.User())
			return nil, fmt.Errorf("access denied")
		},
		KeyboardInteractiveCallback: func(meta ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(meta.User(), "Authentication", []string{"Password:"}, []bool{false})
			if err != nil {
				return nil, err
			}
			if meta.User() == s.cfg.Username && len(answers) > 0 && answers[0] == s.cfg.Password {
				return nil, nil
			}
			return nil, fmt.Errorf("access denied")
		},
	}
	srvCfg.AddHostKey(s.hostKey)

	conn, chans, reqs, err := ssh.NewServerConn(nc, srvCfg)
	if err != nil {
		logger.Debugf("Simulate: SSH handshake failed from %s: %v", nc.RemoteAddr(), err)
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for ch := range chans {
		if ch.ChannelType() != "session" {
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			logger.Debugf("Simulate: channel accept failed: %v", err)
			continue
		}
		s.serveChannel(channel, requests)
		return
	}
}

// serveChannel 只支持 pty-req 与 shell
func (s *Server) serveChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(requests)
			if err := newShell(s.cfg, s.device, channel).run(false); err != nil {
				logger.Debugf("Simulate: ssh session ended: %v", err)
			}
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

// loadOrCreateHostKey 加载或生成持久化的 host key；path 为空时仅生成内存密钥
func loadOrCreateHostKey(path string) (ssh.Signer, error) {
	if path != "" {
		if bs, err := os.ReadFile(path); err == nil {
			if signer, err := ssh.ParsePrivateKey(bs); err == nil {
				return signer, nil
			}
			logger.Warnf("Simulate: host key %s unreadable, regenerating", path)
		}
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	if path != "" {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
		if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write host key: %w", err)
		}
		logger.Infof("Simulate: host key generated at %s", path)
	}
	return ssh.NewSignerFromKey(key)
}
