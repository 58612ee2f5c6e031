package simulate

import (
	"bufio"
	"io"
	"strings"

	"github.com/switchctl/switchctl/pkg/cli"
	"github.com/switchctl/switchctl/pkg/logger"
)

type cliMode int

const (
	modeUser cliMode = iota
	modePrivileged
	modeConfig
	modeInterface
)

const (
	loginAttempts    = 3
	msgReloading     = "Reloading all switches."
	msgBadPassword   = "Incorrect Password!"
	msgUnsavedHeader = "There are unsaved changes."
)

// shell 单个 CLI 会话；写出的文本统一为 CRLF
type shell struct {
	cfg    Config
	device *Device
	w      io.Writer
	r      *bufio.Reader

	mode    cliMode
	iface   string
	pending []string
}

func newShell(cfg Config, device *Device, rw io.ReadWriter) *shell {
	return &shell{cfg: cfg, device: device, w: rw, r: bufio.NewReader(rw)}
}

func (s *shell) prompt() string {
	host := "(" + s.cfg.Hostname + ") "
	switch s.mode {
	case modePrivileged:
		return host + "#"
	case modeConfig:
		return host + "(Config)#"
	case modeInterface:
		return host + "(Interface " + s.iface + ")#"
	default:
		return host + ">"
	}
}

func (s *shell) write(text string) error {
	_, err := io.WriteString(s.w, ensureCRLF(text))
	return err
}

func (s *shell) readLine() (string, error) {
	line, err := s.r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(cleanNewlines(line)), nil
}

// run 运行会话直到对端断开、退出或设备重启
func (s *shell) run(login bool) error {
	if login {
		ok, err := s.login()
		if err != nil || !ok {
			return err
		}
	}
	if err := s.write("\n\n" + s.prompt()); err != nil {
		return err
	}

	for {
		line, err := s.readLine()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if s.pending != nil {
			if err := s.nextPage(line); err != nil {
				return err
			}
			continue
		}
		done, err := s.handle(line)
		if err != nil || done {
			return err
		}
	}
}

func (s *shell) login() (bool, error) {
	for i := 0; i < loginAttempts; i++ {
		if err := s.write("\n" + cli.DefaultUserPrompt); err != nil {
			return false, err
		}
		user, err := s.readLine()
		if err != nil {
			return false, err
		}
		if err := s.write(cli.TermPassword); err != nil {
			return false, err
		}
		pass, err := s.readLine()
		if err != nil {
			return false, err
		}
		if user == s.cfg.Username && pass == s.cfg.Password {
			return true, nil
		}
		logger.Debugf("Simulate: login rejected for %q", user)
	}
	return false, s.write("\n")
}

// handle 执行一条命令；返回 true 表示会话结束
func (s *shell) handle(line string) (bool, error) {
	cmd := strings.Join(strings.Fields(line), " ")
	logger.Debugf("Simulate: input %q in mode %d", cmd, s.mode)
	echo := line + "\n"

	switch {
	case cmd == "":
		return false, s.write("\n" + s.prompt())

	case equalAny(cmd, "logout", "quit") || (cmd == "exit" && s.mode == modeUser):
		return true, s.write(echo)

	case cmd == "exit":
		switch s.mode {
		case modeInterface:
			s.mode, s.iface = modeConfig, ""
		case modeConfig:
			s.mode = modePrivileged
		default:
			s.mode = modeUser
		}
		return false, s.write(echo + s.prompt())

	case equalAny(cmd, "en", "enable"):
		return false, s.enable(echo)

	case s.mode == modeUser:
		return false, s.invalid(echo)

	case equalAny(cmd, "config", "configure"):
		s.mode = modeConfig
		return false, s.write(echo + s.prompt())

	case strings.HasPrefix(cmd, "interface ") && s.mode == modeConfig:
		id := strings.TrimSpace(strings.TrimPrefix(cmd, "interface "))
		if !s.device.HasPort(id) {
			return false, s.invalid(echo)
		}
		s.mode, s.iface = modeInterface, id
		return false, s.write(echo + s.prompt())

	case s.mode == modeInterface && (cmd == "shutdown" || cmd == "no shutdown"):
		s.device.SetPort(s.iface, cmd == "no shutdown")
		return false, s.write(echo + s.prompt())

	case cmd == "write memory" || cmd == "save":
		s.device.Save()
		return false, s.write(echo + "\n" + cli.TermConfigCreated + "\n\n" + cli.TermConfigSaved + "\n" + s.prompt())

	case cmd == "reload" && s.mode == modePrivileged:
		return s.reload(echo)

	case strings.HasPrefix(cmd, "show ") && s.mode == modePrivileged:
		out, ok := s.show(cmd)
		if !ok {
			return false, s.invalid(echo)
		}
		return false, s.page(echo, out)
	}
	return false, s.invalid(echo)
}

func (s *shell) enable(echo string) error {
	if s.mode != modeUser {
		return s.write(echo + s.prompt())
	}
	if err := s.write(echo + cli.TermPassword); err != nil {
		return err
	}
	pass, err := s.readLine()
	if err != nil {
		return err
	}
	if pass != s.cfg.Password {
		return s.write("\n" + msgBadPassword + "\n\n" + s.prompt())
	}
	s.mode = modePrivileged
	return s.write("\n" + s.prompt())
}

// invalid 错误标记作为回显结尾，提示符在下一次输入时补出
func (s *shell) invalid(echo string) error {
	return s.write(echo + "\n" + cli.TermInvalidInput)
}

func (s *shell) show(cmd string) (string, bool) {
	base := strings.TrimSpace(strings.TrimSuffix(cmd, "| exclude lag"))
	switch base {
	case "show port status all":
		return s.device.PortStatusTable(), true
	case "show interface ethernet all":
		return s.device.EthernetTable(), true
	}
	return s.device.Output(base)
}

// page 超过一屏时分页输出
func (s *shell) page(echo, body string) error {
	lines := strings.Split(strings.TrimRight(cleanNewlines(body), "\n"), "\n")
	per := s.cfg.PageLines
	if per <= 0 || len(lines) <= per {
		return s.write(echo + strings.Join(lines, "\n") + "\n\n" + s.prompt())
	}
	s.pending = lines[per:]
	return s.write(echo + strings.Join(lines[:per], "\n") + "\n" + cli.TermMore)
}

func (s *shell) nextPage(input string) error {
	if input == "q" {
		s.pending = nil
		return s.write("\n\n" + s.prompt())
	}
	lines := s.pending
	per := s.cfg.PageLines
	if len(lines) <= per {
		s.pending = nil
		return s.write("\n" + strings.Join(lines, "\n") + "\n\n" + s.prompt())
	}
	s.pending = lines[per:]
	return s.write("\n" + strings.Join(lines[:per], "\n") + "\n" + cli.TermMore)
}

// reload 未保存配置时先询问是否保存；确认重启后断开会话
func (s *shell) reload(echo string) (bool, error) {
	if s.device.Unsaved() {
		if err := s.write(echo + "\n" + msgUnsavedHeader + "\n\n" + cli.TermUnsavedChanges); err != nil {
			return false, err
		}
		answer, err := s.readLine()
		if err != nil {
			return false, err
		}
		if answer == "y" {
			s.device.Save()
			return false, s.write("\n" + cli.TermConfigCreated)
		}
		echo = "\n"
	}

	if err := s.write(echo + "\n" + cli.TermReloadStack); err != nil {
		return false, err
	}
	answer, err := s.readLine()
	if err != nil {
		return false, err
	}
	if answer != "y" {
		return false, s.write("\n\n" + s.prompt())
	}
	_ = s.write("\n" + msgReloading + "\n")
	s.device.Reboot(s.cfg.RebootDelay)
	logger.Infof("Simulate: stack reload, refusing sessions for %s", s.cfg.RebootDelay)
	return true, nil
}

func ensureCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func cleanNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}

func equalAny(s string, opts ...string) bool {
	for _, o := range opts {
		if strings.EqualFold(strings.TrimSpace(s), o) {
			return true
		}
	}
	return false
}

