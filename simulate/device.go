package simulate

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Device 被模拟交换机的可变状态，多个会话共享
type Device struct {
	mu        sync.Mutex
	outputs   map[string]string
	ports     []PortFixture
	unsaved   bool
	bootUntil time.Time
	reloads   int
}

// NewDevice 按素材创建设备
func NewDevice(f *Fixtures) *Device {
	d := &Device{
		outputs: make(map[string]string, len(f.Outputs)),
		ports:   append([]PortFixture(nil), f.Ports...),
		unsaved: f.Unsaved,
	}
	for cmd, out := range f.Outputs {
		d.outputs[strings.TrimSpace(cmd)] = out
	}
	return d
}

// Output 固定回显
func (d *Device) Output(cmd string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, ok := d.outputs[cmd]
	return out, ok
}

// HasPort 端口是否存在
func (d *Device) HasPort(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.indexOf(id) >= 0
}

// SetPort 修改端口管理状态，配置变为未保存
func (d *Device) SetPort(id string, up bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexOf(id)
	if i < 0 {
		return false
	}
	d.ports[i].Up = up
	d.unsaved = true
	return true
}

// PortUp 端口是否为 Up
func (d *Device) PortUp(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.indexOf(id)
	return i >= 0 && d.ports[i].Up
}

func (d *Device) indexOf(id string) int {
	for i, p := range d.ports {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Unsaved 是否有未保存配置
func (d *Device) Unsaved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unsaved
}

// Save 保存运行配置
func (d *Device) Save() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unsaved = false
}

// Reboot 进入重启，期间拒绝新连接
func (d *Device) Reboot(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bootUntil = time.Now().Add(delay)
	d.reloads++
}

// Booting 是否仍在重启中
func (d *Device) Booting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Now().Before(d.bootUntil)
}

// Reloads 已执行的重启次数
func (d *Device) Reloads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reloads
}

// PortStatusTable "show port status all" 表格
func (d *Device) PortStatusTable() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	b.WriteString("\n                 Admin     Physical  Physical  Link   Link    LACP    Flow\n")
	b.WriteString("Intf      Type    Mode      Mode      Status    Status Trap    Mode    Control\n")
	b.WriteString("--------- ------- --------- --------- --------- ------ ------- ------- -------\n")
	for _, p := range d.ports {
		admin, link, speed := "Disable", "Down", "        "
		if p.Up {
			admin, link, speed = "Enable", "Up", "1000 Full"
		}
		fmt.Fprintf(&b, "%-9s         %-9s Auto      %-9s %-6s Enable  Enable  Disable\n", p.ID, admin, speed, link)
	}
	return b.String()
}

// EthernetTable "show interface ethernet all" 表格
func (d *Device) EthernetTable() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b strings.Builder
	b.WriteString("\n                               Total Packets         Total Packets\n")
	b.WriteString("Port       Link     Errors      Transmitted           Received\n")
	b.WriteString("---------  -------  ----------  --------------------  --------------------\n")
	for _, p := range d.ports {
		link := "Down"
		if p.Up {
			link = "Up"
		}
		fmt.Fprintf(&b, "%-9s  %-7s  %10d  %20d  %20d\n", p.ID, link, 0, p.Transmitted, p.Received)
	}
	return b.String()
}
