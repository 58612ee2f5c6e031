package model

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ControlType 可控属性类型
type ControlType string

const (
	ControlPush   ControlType = "Push"
	ControlToggle ControlType = "Toggle"
)

// 快照中的固定标签与分组
const (
	PropertyReload       = "Reload"
	PortControlsGroup    = "Port Controls"
	PortPacketsGroup     = "Ports Packets Statistics"
	TotalPacketsGroup    = "TotalPacketsStatistics"
	ReloadLabel          = "Reload"
	ReloadLabelPressed   = "Reloading"
	ReloadGracePeriodMS  = 180000
	ToggleLabelOn        = "On"
	ToggleLabelOff       = "Off"
	portControlKeyPrefix = PortControlsGroup + "#Port "
)

// PortControlKey "Port Controls#Port 1/0/1"
func PortControlKey(id string) string {
	return portControlKeyPrefix + id
}

// ControllableProperty 控制项描述
type ControllableProperty struct {
	Name          string      `json:"name"`
	Type          ControlType `json:"type"`
	Label         string      `json:"label,omitempty"`
	LabelPressed  string      `json:"label_pressed,omitempty"`
	GracePeriodMS int64       `json:"grace_period_ms,omitempty"`
	LabelOn       string      `json:"label_on,omitempty"`
	LabelOff      string      `json:"label_off,omitempty"`
	Value         string      `json:"value"`
}

// ReloadControl 整栈重启按钮
func ReloadControl() ControllableProperty {
	return ControllableProperty{
		Name:          PropertyReload,
		Type:          ControlPush,
		Label:         ReloadLabel,
		LabelPressed:  ReloadLabelPressed,
		GracePeriodMS: ReloadGracePeriodMS,
	}
}

// PortToggle 端口开关
func PortToggle(id string, up bool) ControllableProperty {
	return ControllableProperty{
		Name:     PortControlKey(id),
		Type:     ControlToggle,
		LabelOn:  ToggleLabelOn,
		LabelOff: ToggleLabelOff,
		Value:    boolString(up),
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Snapshot 一次轮询的完整结果，发布后只读
type Snapshot struct {
	Statistics  *orderedmap.OrderedMap[string, string] `json:"statistics"`
	Controls    []ControllableProperty                 `json:"controls"`
	CollectedAt time.Time                              `json:"collected_at"`
}

// NewSnapshot 创建空快照
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Statistics: orderedmap.New[string, string](),
		Controls:   []ControllableProperty{},
	}
}

// IsEmpty 是否没有任何数据
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (s.Statistics.Len() == 0 && len(s.Controls) == 0)
}

// Stat 读取统计值
func (s *Snapshot) Stat(label string) (string, bool) {
	if s == nil {
		return "", false
	}
	return s.Statistics.Get(label)
}

// Control 读取控制项
func (s *Snapshot) Control(name string) (ControllableProperty, bool) {
	if s == nil {
		return ControllableProperty{}, false
	}
	for _, c := range s.Controls {
		if c.Name == name {
			return c, true
		}
	}
	return ControllableProperty{}, false
}

// Clone 深拷贝
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Statistics:  orderedmap.New[string, string](),
		Controls:    make([]ControllableProperty, len(s.Controls)),
		CollectedAt: s.CollectedAt,
	}
	for p := s.Statistics.Oldest(); p != nil; p = p.Next() {
		out.Statistics.Set(p.Key, p.Value)
	}
	copy(out.Controls, s.Controls)
	return out
}

// WithPortState 返回端口状态被替换后的新快照，原快照不变
func (s *Snapshot) WithPortState(id string, up bool) *Snapshot {
	out := s.Clone()
	key := PortControlKey(id)
	out.Statistics.Set(key, boolString(up))

	for i := range out.Controls {
		if out.Controls[i].Name == key {
			out.Controls[i].Value = boolString(up)
			return out
		}
	}
	out.Controls = append(out.Controls, PortToggle(id, up))
	return out
}
