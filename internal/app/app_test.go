package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchctl/switchctl/internal/config"
	"github.com/switchctl/switchctl/pkg/cli"
	sshc "github.com/switchctl/switchctl/pkg/ssh"
	"github.com/switchctl/switchctl/pkg/telnet"
)

func TestNewTransportByProtocol(t *testing.T) {
	tr, err := NewTransport(config.DeviceConfig{Host: "10.0.0.1", Protocol: "telnet"}, "pw")
	require.NoError(t, err)
	assert.IsType(t, &telnet.Client{}, tr)

	tr, err = NewTransport(config.DeviceConfig{Host: "10.0.0.1", Protocol: "ssh"}, "pw")
	require.NoError(t, err)
	assert.IsType(t, &sshc.Client{}, tr)

	_, err = NewTransport(config.DeviceConfig{Protocol: "serial"}, "")
	assert.Error(t, err)
}

func TestTerminatorsOverride(t *testing.T) {
	assert.Equal(t, cli.DefaultTerminators(), Terminators(config.DeviceConfig{}))

	d := config.DeviceConfig{Terminators: config.TerminatorsConfig{Success: []string{"$"}}}
	got := Terminators(d)
	assert.Equal(t, []string{"$"}, got.Success)
	assert.Empty(t, got.Error)
}

func TestSessionOptionsCarryTimeouts(t *testing.T) {
	o := SessionOptions(config.DeviceConfig{ControlTimeout: 2 * time.Second, EscalateCommand: "enable"}, "pw")
	assert.Equal(t, "pw", o.Password)
	assert.Equal(t, "enable", o.EscalateCommand)
	assert.Equal(t, 2*time.Second, o.ControlTimeout)
}

func TestBuildWiresAuditAndScheduler(t *testing.T) {
	cfg := &config.Config{
		Device: config.DeviceConfig{Name: "sw1", Host: "127.0.0.1", Port: 2323, Protocol: "telnet", Password: "pw"},
		Poll:   config.PollConfig{Enabled: true, Interval: time.Minute},
		Database: config.DatabaseConfig{SQLite: config.SQLiteConfig{
			Enabled: true,
			Path:    filepath.Join(t.TempDir(), "audit.db"),
		}},
		Storage: config.StorageConfig{Backend: "none"},
	}
	a, err := Build(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "sw1", a.Switch.Name())
	assert.NotNil(t, a.Auditor)
	require.NotNil(t, a.Scheduler)
	assert.Equal(t, time.Minute, a.Scheduler.Interval())
	require.Contains(t, a.Checks, "database")
	assert.NoError(t, a.Checks["database"]())
}
