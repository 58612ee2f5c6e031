package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/switchctl/switchctl/internal/config"
	"github.com/switchctl/switchctl/internal/model"
	"github.com/switchctl/switchctl/pkg/logger"
)

// Publisher 快照与控制事件发布
type Publisher interface {
	PublishSnapshot(device string, snap *model.Snapshot) error
	PublishControl(device string, evt ControlEvent) error
	Close()
}

// ControlEvent 控制事件
type ControlEvent struct {
	Property string    `json:"property"`
	Value    string    `json:"value"`
	Outcome  string    `json:"outcome"`
	State    string    `json:"state"`
	At       time.Time `json:"at"`
}

type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher 通过 NATS 发布 JSON 事件
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// NewNATSPublisher 连接 NATS；未启用时返回 nil
func NewNATSPublisher(cfg config.NATSConfig) (*NATSPublisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("switchctl"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSPublisher(nc, cfg.SubjectPrefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "switchctl"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject "<prefix>.<device>.<kind>"；设备名中的 '.' 与空白替换为 '_'
func (p *NATSPublisher) Subject(device, kind string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '\t', '*', '>':
			return '_'
		}
		return r
	}, device)
	return p.prefix + "." + token + "." + kind
}

// PublishSnapshot 发布快照
func (p *NATSPublisher) PublishSnapshot(device string, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return p.conn.Publish(p.Subject(device, "snapshot"), data)
}

// PublishControl 发布控制事件
func (p *NATSPublisher) PublishControl(device string, evt ControlEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal control event: %w", err)
	}
	return p.conn.Publish(p.Subject(device, "control"), data)
}

// Close 发送剩余消息后关闭
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		logger.Warnf("NATS drain failed: %v", err)
	}
}
