package cli

import (
	"errors"
	"strings"
)

var (
	// ErrTimeout 等待终止符超时
	ErrTimeout = errors.New("timed out waiting for terminator")
	// ErrNotConnected 通道未建立
	ErrNotConnected = errors.New("channel not connected")
	// ErrClosed 通道被对端关闭
	ErrClosed = errors.New("channel closed by peer")
)

// Match 响应终止符分类
type Match int

const (
	MatchNone Match = iota
	MatchSuccess
	MatchError
)

func (m Match) String() string {
	switch m {
	case MatchSuccess:
		return "success"
	case MatchError:
		return "error"
	default:
		return "none"
	}
}

// Response 一次命令交互的完整回显
type Response struct {
	Text       string
	Match      Match
	Terminator string
}

// EndsWith 回显是否以指定后缀结束
func (r Response) EndsWith(suffix string) bool {
	return strings.HasSuffix(r.Text, suffix)
}

// 设备默认终止符
const (
	TermNewline         = "\n"
	TermPrompt          = "#"
	TermMore            = "--More-- or (q)uit"
	TermConfigCreated   = "Config file 'startup-config' created successfully ."
	TermConfigSaved     = "Configuration Saved!"
	TermUnsavedChanges  = "Would you like to save them now? (y/n) "
	TermReloadStack     = "Are you sure you want to reload the stack? (y/n) "
	TermPassword        = "Password:"
	TermInvalidInput    = "% Invalid input detected at '^' marker."
	DefaultUserPrompt   = "User:"
	DefaultLoginSuccess = ">"
)

// Terminators 终止符集合，按后缀匹配
type Terminators struct {
	Success []string `mapstructure:"success"`
	Error   []string `mapstructure:"error"`
}

// DefaultTerminators 返回交换机的默认终止符集合
func DefaultTerminators() Terminators {
	return Terminators{
		Success: []string{
			TermNewline,
			TermPrompt,
			TermMore,
			TermConfigCreated,
			TermConfigSaved,
			TermUnsavedChanges,
			TermReloadStack,
			TermPassword,
		},
		Error: []string{TermInvalidInput},
	}
}

// Classify 判断文本是否已经以终止符结束；错误终止符优先
func (t Terminators) Classify(text string) (Match, string) {
	for _, term := range t.Error {
		if term != "" && strings.HasSuffix(text, term) {
			return MatchError, term
		}
	}
	for _, term := range t.Success {
		if term != "" && strings.HasSuffix(text, term) {
			return MatchSuccess, term
		}
	}
	return MatchNone, ""
}

// Empty 集合是否为空
func (t Terminators) Empty() bool {
	return len(t.Success) == 0 && len(t.Error) == 0
}
