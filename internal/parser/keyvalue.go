package parser

import (
	"regexp"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Fields 按出现顺序保存的 键 -> 值
type Fields = orderedmap.OrderedMap[string, string]

var (
	// DotLeaders 形如 "IP Address.......... 10.0.0.1" 的点引导分隔
	DotLeaders = regexp.MustCompile(`\.{2,}`)
	// UnderscoreLeaders 形如 "Name______ value" 的下划线分隔
	UnderscoreLeaders = regexp.MustCompile(`_{2,}`)
)

// NewFields 创建空的有序字段表
func NewFields() *Fields {
	return orderedmap.New[string, string]()
}

// ParseKeyValues 逐行提取 键/值 对
// 命中分隔符的行在第一次匹配处切分：键原样保留，值去除首尾空白及全部制表符
// 未命中的行忽略；重复键以后出现者为准，位置保持首次出现处
func ParseKeyValues(text string, sep *regexp.Regexp) *Fields {
	out := NewFields()
	if sep == nil {
		sep = DotLeaders
	}
	for _, line := range strings.Split(text, "\n") {
		loc := sep.FindStringIndex(line)
		if loc == nil {
			continue
		}
		key := line[:loc[0]]
		value := strings.ReplaceAll(strings.TrimSpace(line[loc[1]:]), "\t", "")
		out.Set(key, value)
	}
	return out
}
