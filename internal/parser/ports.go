package parser

import (
	"regexp"
	"strings"
)

// PortRecord 单个端口的解析结果，每次轮询整体重建
type PortRecord struct {
	ID          string `json:"id"`
	Up          bool   `json:"up"`
	Transmitted string `json:"transmitted,omitempty"`
	Received    string `json:"received,omitempty"`
}

// RowKind 端口表格来源
type RowKind int

const (
	// RowStatus 来自 "show port status all"
	RowStatus RowKind = iota
	// RowPackets 来自 "show interface ethernet all"
	RowPackets
)

const (
	colID          = 0
	colTransmitted = 3
	colReceived    = 4
)

var (
	portRow      = regexp.MustCompile(`^\n*\d/\d/\d.+$`)
	columnSplit  = regexp.MustCompile(` {2,}`)
	portProperty = regexp.MustCompile(`^(?:Port Controls#)?Port (\d+/\d+/\d+)$`)
)

// ParsePortRows 按回车拆分表格，读取 stack/slot/port 行的固定列
func ParsePortRows(text string, kind RowKind) []PortRecord {
	var records []PortRecord
	for _, row := range strings.Split(text, "\r") {
		if !portRow.MatchString(row) {
			continue
		}
		cols := splitColumns(row)
		if len(cols) == 0 {
			continue
		}
		rec := PortRecord{ID: strings.ReplaceAll(cols[colID], "\n", "")}
		switch kind {
		case RowStatus:
			rec.Up = strings.Contains(row, " Up ")
		case RowPackets:
			if len(cols) <= colReceived {
				continue
			}
			rec.Transmitted = cols[colTransmitted]
			rec.Received = cols[colReceived]
		}
		records = append(records, rec)
	}
	return records
}

func splitColumns(row string) []string {
	parts := columnSplit.Split(row, -1)
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cols = append(cols, p)
		}
	}
	return cols
}

// MatchPortProperty 识别端口开关属性名，返回端口号
// "Port 1/0/12" 与 "Port Controls#Port 1/0/12" -> "1/0/12"
func MatchPortProperty(property string) (string, bool) {
	m := portProperty.FindStringSubmatch(property)
	if m == nil {
		return "", false
	}
	return m[1], true
}
