package parser

import "strings"

// totalPacketLabels 快照标签 <- "show interface switchport" 中的键
var totalPacketLabels = []struct {
	label  string
	source string
}{
	{"Total Packets Received Without Errors", "Packets Received Without Error"},
	{"Total Packets Transmitted Without Errors", "Packets Transmitted Without Errors"},
	{"Total Packets Received With Errors", "Packets Received With Error"},
	{"Total Packets Transmitted With Errors", "Transmit Packet Errors"},
	{"Time Since Counters Last Cleared", "Time Since Counters Last Cleared"},
}

// ParsePacketTotals 提取整机收发包汇总；缺失的键不输出
func ParsePacketTotals(text string) *Fields {
	kv := ParseKeyValues(text, DotLeaders)
	out := NewFields()
	for _, m := range totalPacketLabels {
		if v, ok := lookupTrimmed(kv, m.source); ok {
			out.Set(m.label, v)
		}
	}
	return out
}

// lookupTrimmed 键原样保存，可能带有点引导前的空格
func lookupTrimmed(kv *Fields, key string) (string, bool) {
	if v, ok := kv.Get(key); ok {
		return v, true
	}
	for pair := kv.Oldest(); pair != nil; pair = pair.Next() {
		if strings.TrimSpace(pair.Key) == key {
			return pair.Value, true
		}
	}
	return "", false
}
