package service

import (
	"sync/atomic"
	"time"

	"github.com/switchctl/switchctl/internal/model"
	"github.com/switchctl/switchctl/internal/parser"
)

// 统计命令，按发送顺序
const (
	CmdIPManagement = "show ip management"
	CmdPoE          = "show poe"
	CmdSwitchport   = "show interface switchport"
	CmdEnvironment  = "show environment"
	CmdEthernet     = "show interface ethernet all | exclude lag"
	CmdPortStatus   = "show port status all | exclude lag"
)

// RawOutputs 一次轮询的原始回显
type RawOutputs struct {
	IPManagement string
	PoE          string
	Switchport   string
	Environment  string
	Ethernet     string
	PortStatus   string
}

// Commands 按发送顺序返回 命令 -> 回显
func (r RawOutputs) Commands() [][2]string {
	return [][2]string{
		{CmdIPManagement, r.IPManagement},
		{CmdPoE, r.PoE},
		{CmdSwitchport, r.Switchport},
		{CmdEnvironment, r.Environment},
		{CmdEthernet, r.Ethernet},
		{CmdPortStatus, r.PortStatus},
	}
}

// BuildSnapshot 解析原始回显并按固定分组顺序组装快照
func BuildSnapshot(raw RawOutputs, at time.Time) *model.Snapshot {
	snap := model.NewSnapshot()
	snap.CollectedAt = at
	stats := snap.Statistics

	for p := parser.ParseKeyValues(raw.IPManagement, parser.DotLeaders).Oldest(); p != nil; p = p.Next() {
		stats.Set(p.Key, p.Value)
	}
	for p := parser.ParseKeyValues(raw.PoE, parser.DotLeaders).Oldest(); p != nil; p = p.Next() {
		stats.Set(p.Key, p.Value)
	}
	for _, r := range parser.ClassifyEnvironment(raw.Environment) {
		stats.Set(r.Key(), r.Value)
	}

	for _, port := range parser.ParsePortRows(raw.PortStatus, parser.RowStatus) {
		toggle := model.PortToggle(port.ID, port.Up)
		stats.Set(toggle.Name, toggle.Value)
		snap.Controls = append(snap.Controls, toggle)
	}
	stats.Set(model.PropertyReload, "")
	snap.Controls = append(snap.Controls, model.ReloadControl())

	for _, port := range parser.ParsePortRows(raw.Ethernet, parser.RowPackets) {
		prefix := model.PortPacketsGroup + "#Port " + port.ID
		stats.Set(prefix+" Received", port.Received)
		stats.Set(prefix+" Transmitted", port.Transmitted)
	}
	for p := parser.ParsePacketTotals(raw.Switchport).Oldest(); p != nil; p = p.Next() {
		stats.Set(model.TotalPacketsGroup+"#"+p.Key, p.Value)
	}
	return snap
}

// SnapshotCache 最近一次发布的快照；写入只发生在持有会话锁期间
type SnapshotCache struct {
	current atomic.Pointer[model.Snapshot]
}

// Load 读取当前快照，可能为 nil
func (c *SnapshotCache) Load() *model.Snapshot {
	return c.current.Load()
}

// Store 整体替换快照
func (c *SnapshotCache) Store(s *model.Snapshot) {
	c.current.Store(s)
}

// Update 基于当前快照生成新快照；无缓存时返回 false
func (c *SnapshotCache) Update(fn func(*model.Snapshot) *model.Snapshot) (*model.Snapshot, bool) {
	cur := c.current.Load()
	if cur == nil {
		return nil, false
	}
	next := fn(cur)
	c.current.Store(next)
	return next, true
}

// LoadOrEmpty 读取当前快照，无缓存时返回空快照
func (c *SnapshotCache) LoadOrEmpty() *model.Snapshot {
	if s := c.current.Load(); s != nil {
		return s
	}
	return model.NewSnapshot()
}
