package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputLines 回显的头部与尾部行
type OutputLines struct {
	HeadLines []string `json:"head_lines"`
	TailLines []string `json:"tail_lines"`
}

// ParseOutputLines 提取回显头尾各 maxLines 行；行数不足时 tail 为空
func ParseOutputLines(output string, maxLines int) OutputLines {
	if maxLines <= 0 {
		maxLines = 5
	}
	output = strings.ReplaceAll(output, "\r\n", "\n")
	output = strings.ReplaceAll(output, "\r", "\n")
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return OutputLines{}
	}

	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return OutputLines{HeadLines: lines}
	}
	head := make([]string, maxLines)
	copy(head, lines[:maxLines])

	tailStart := len(lines) - maxLines
	if tailStart < maxLines {
		tailStart = maxLines
	}
	tail := make([]string, len(lines)-tailStart)
	copy(tail, lines[tailStart:])
	return OutputLines{HeadLines: head, TailLines: tail}
}

// FormatOutputLines 格式化为单行日志文本
func FormatOutputLines(lines OutputLines) string {
	var parts []string
	if len(lines.HeadLines) > 0 {
		parts = append(parts, "head-lines: ["+strings.Join(lines.HeadLines, " ⟩ ")+"]")
	}
	if len(lines.TailLines) > 0 {
		parts = append(parts, "tail-lines: ["+strings.Join(lines.TailLines, " ⟩ ")+"]")
	}
	return strings.Join(parts, ", ")
}

// DebugCommandOutput 在 debug 级别记录一次设备交互的回显摘要
func DebugCommandOutput(command string, output string, maxLines int) {
	if GetLogger().Level < logrus.DebugLevel {
		return
	}
	lines := ParseOutputLines(output, maxLines)
	if len(lines.HeadLines) == 0 {
		return
	}
	WithFields(logrus.Fields{
		"command": command,
		"bytes":   len(output),
	}).Debugf("Command echo: %s", FormatOutputLines(lines))
}
