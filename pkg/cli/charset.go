package cli

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// Decoder 将设备原始字节转换为 UTF-8 文本
type Decoder func([]byte) string

// NewDecoder 按字符集名称创建解码器
// 空或 "auto" 时先按 UTF-8 校验，失败再依次尝试常见旧编码
func NewDecoder(charset string) Decoder {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "auto":
		return EnsureUTF8
	case "utf-8", "utf8":
		return func(b []byte) string { return string(b) }
	case "latin1", "iso-8859-1":
		return fixed(charmap.ISO8859_1)
	case "windows-1252", "cp1252":
		return fixed(charmap.Windows1252)
	case "gbk":
		return fixed(simplifiedchinese.GBK)
	case "gb18030":
		return fixed(simplifiedchinese.GB18030)
	case "big5":
		return fixed(traditionalchinese.Big5)
	default:
		return EnsureUTF8
	}
}

func fixed(enc encoding.Encoding) Decoder {
	return func(b []byte) string {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
		return string(b)
	}
}

// EnsureUTF8 对非法 UTF-8 字节尝试常见编码解码
func EnsureUTF8(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	encs := []encoding.Encoding{
		charmap.Windows1252,
		charmap.ISO8859_1,
		simplifiedchinese.GB18030,
		traditionalchinese.Big5,
	}
	for _, enc := range encs {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
	}
	return string(b)
}

func tryDecode(enc encoding.Encoding, b []byte) (string, bool) {
	reader := transform.NewReader(bytes.NewReader(b), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", false
	}
	if utf8.Valid(decoded) {
		return string(decoded), true
	}
	return "", false
}
