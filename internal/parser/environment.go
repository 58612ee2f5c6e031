package parser

import (
	"regexp"
	"strings"

	"github.com/switchctl/switchctl/pkg/logger"
)

// EnvGroup 环境读数分组
type EnvGroup int

const (
	envNone EnvGroup = iota
	GroupTemperature
	GroupFan
	GroupPower
)

// Category 快照中的分组前缀
func (g EnvGroup) Category() string {
	switch g {
	case GroupTemperature:
		return "Temperature Sensors"
	case GroupFan:
		return "Fans"
	case GroupPower:
		return "Power Modules"
	default:
		return ""
	}
}

// EnvironmentReading 一条环境读数
type EnvironmentReading struct {
	Group EnvGroup
	Label string
	Value string
}

// Key 快照标签 "分组#名称"
func (r EnvironmentReading) Key() string {
	return r.Group.Category() + "#" + r.Label
}

var (
	envColumns = regexp.MustCompile(`\s{2,}`)
	allDigits  = regexp.MustCompile(`^\d+$`)
)

var envHeaders = []struct {
	prefix string
	group  EnvGroup
}{
	{"Temperature Sensors:", GroupTemperature},
	{"Fans:", GroupFan},
	{"Power Modules:", GroupPower},
}

// ClassifyEnvironment 解析 "show environment" 的温度、风扇、电源三段
// 分段标题只向前切换；数据行以数字开头，按两个以上空白切列
func ClassifyEnvironment(text string) []EnvironmentReading {
	var (
		mode     = envNone
		readings []EnvironmentReading
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.ReplaceAll(line, "\r", "")
		if line == "" {
			continue
		}
		if g, ok := headerGroup(line); ok {
			if g > mode {
				mode = g
			}
			continue
		}
		if line[0] < '0' || line[0] > '9' {
			continue
		}
		cols := envColumns.Split(strings.TrimSpace(line), -1)
		r, ok := readEnvLine(mode, cols)
		if !ok {
			logger.Debugf("Skipping environment line in mode %d: %q", mode, line)
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

func headerGroup(line string) (EnvGroup, bool) {
	for _, h := range envHeaders {
		if strings.HasPrefix(line, h.prefix) {
			return h.group, true
		}
	}
	return envNone, false
}

func readEnvLine(mode EnvGroup, c []string) (EnvironmentReading, bool) {
	switch mode {
	case GroupTemperature:
		// 带 "Unit  Sensor" 两个编号列时整体右移一列
		off := 0
		if len(c) > 1 && allDigits.MatchString(c[1]) {
			off = 1
		}
		if len(c) < off+4 {
			return EnvironmentReading{}, false
		}
		return EnvironmentReading{
			Group: GroupTemperature,
			Label: "Temp. Sensor " + c[off] + ", " + c[off+1],
			Value: c[off+2] + ", " + c[off+3],
		}, true
	case GroupFan:
		if len(c) < 7 {
			return EnvironmentReading{}, false
		}
		return EnvironmentReading{
			Group: GroupFan,
			Label: "Fan " + c[1] + ", " + c[2],
			Value: c[6] + ", " + c[4] + "rps / " + c[5],
		}, true
	case GroupPower:
		if len(c) < 5 {
			return EnvironmentReading{}, false
		}
		return EnvironmentReading{
			Group: GroupPower,
			Label: "Power supply " + c[1] + ", " + c[2],
			Value: c[3] + ", " + c[4],
		}, true
	}
	return EnvironmentReading{}, false
}
