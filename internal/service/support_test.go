package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchctl/switchctl/internal/config"
	"github.com/switchctl/switchctl/internal/database"
	"github.com/switchctl/switchctl/internal/model"
)

func TestSnapshotCacheUpdateIsCopyOnWrite(t *testing.T) {
	var c SnapshotCache
	assert.Nil(t, c.Load())
	assert.True(t, c.LoadOrEmpty().IsEmpty())

	_, ok := c.Update(func(s *model.Snapshot) *model.Snapshot { return s })
	assert.False(t, ok)

	first := BuildSnapshot(RawOutputs{
		PortStatus: "\r\n1/0/1                                 Down    Auto\r\n(M4250) #",
	}, time.Time{})
	c.Store(first)

	next, ok := c.Update(func(s *model.Snapshot) *model.Snapshot { return s.WithPortState("1/0/1", true) })
	require.True(t, ok)
	assert.Same(t, next, c.Load())

	v, _ := first.Stat("Port Controls#Port 1/0/1")
	assert.Equal(t, "false", v, "published snapshot must not change")
	v, _ = next.Stat("Port Controls#Port 1/0/1")
	assert.Equal(t, "true", v)
}

func TestBuildSnapshotFromEmptyOutputs(t *testing.T) {
	snap := BuildSnapshot(RawOutputs{}, time.Time{})
	assert.Equal(t, 1, snap.Statistics.Len())
	v, ok := snap.Stat("Reload")
	assert.True(t, ok)
	assert.Empty(t, v)
	require.Len(t, snap.Controls, 1)
	assert.Equal(t, model.PropertyReload, snap.Controls[0].Name)
}

func TestLocalArchiverWritesCapture(t *testing.T) {
	dir := t.TempDir()
	a := NewLocalArchiver(dir, "captures")

	obj, err := a.Store(context.Background(), Capture{
		ID:     "abc",
		Device: "Stack 1/A",
		At:     time.Date(2024, 5, 1, 8, 30, 15, 0, time.UTC),
		Outputs: [][2]string{
			{CmdEnvironment, "Temperature Sensors:\r\n1   Internal   Normal   25C\r\n--More-- or (q)uit\r\nFans:"},
		},
	})
	require.NoError(t, err)

	want := filepath.Join(dir, "captures", "stack_1_a", "20240501", "083015_abc.txt")
	assert.Equal(t, "file://"+want, obj.URI)
	assert.True(t, strings.HasPrefix(obj.Checksum, "sha256:"))

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), obj.Size)
	assert.Equal(t, "### show environment\nTemperature Sensors:\n1   Internal   Normal   25C\nFans:\n", string(data))
}

func TestNewArchiverSelectsBackend(t *testing.T) {
	assert.Nil(t, NewArchiver(config.StorageConfig{Backend: "none"}))
	assert.IsType(t, &LocalArchiver{}, NewArchiver(config.StorageConfig{Backend: "local"}))

	// MinIO 未配置地址时回退到本地
	a := NewArchiver(config.StorageConfig{Backend: "minio", Local: config.LocalStorageConfig{BaseDir: t.TempDir()}})
	require.IsType(t, &DelegatingArchiver{}, a)
	obj, err := a.Store(context.Background(), Capture{Device: "sw1", At: time.Now()})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.URI, "file://"))
}

func TestGormAuditorRoundTrip(t *testing.T) {
	gdb, err := database.Open(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "audit.db")})
	require.NoError(t, err)
	a := NewGormAuditor(gdb)
	ctx := context.Background()

	a.RecordPoll(ctx, &model.PollRecord{Device: "sw1", Outcome: model.PollOutcomeSuccess, Labels: 12})
	for _, p := range []string{"Port 1/0/1", "Reload"} {
		a.RecordControl(ctx, &model.ControlAudit{Device: "sw1", Property: p, Outcome: model.ControlOutcomeApplied})
	}

	recent, err := a.RecentControls(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Reload", recent[0].Property)

	var polls int64
	require.NoError(t, gdb.Model(&model.PollRecord{}).Count(&polls).Error)
	assert.EqualValues(t, 1, polls)
}

type recordingConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	drained  bool
	err      error
}

func (c *recordingConn) Publish(subj string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subj)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *recordingConn) Drain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drained = true
	return nil
}

func TestNATSPublisherSubjects(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn, "")

	assert.Equal(t, "switchctl.stack_1.snapshot", p.Subject("stack.1", "snapshot"))
	assert.Equal(t, "switchctl.core_sw.control", p.Subject("core sw", "control"))

	require.NoError(t, p.PublishControl("sw1", ControlEvent{Property: "Reload", Outcome: model.ControlOutcomeApplied}))
	var evt ControlEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &evt))
	assert.Equal(t, "Reload", evt.Property)

	p.Close()
	assert.True(t, conn.drained)

	pub, err := NewNATSPublisher(config.NATSConfig{})
	require.NoError(t, err)
	assert.Nil(t, pub)
}

func TestSwitchPublishesEventsAndArchives(t *testing.T) {
	conn := &recordingConn{}
	dir := t.TempDir()
	h := newHarness(t, scriptedDevice())
	h.sw.events = newNATSPublisher(conn, "lab")
	h.sw.archive = NewLocalArchiver(dir, "")

	_, err := h.sw.Poll(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.sw.Control(context.Background(), ControlRequest{Property: "Port 1/0/2", Value: "1"}))

	assert.Equal(t, []string{"lab.sw1.snapshot", "lab.sw1.control"}, conn.subjects)
	require.Len(t, h.audit.polls, 1)
	assert.True(t, strings.HasPrefix(h.audit.polls[0].ArchiveURI, "file://"+dir))
}

func TestSwitchToleratesPublishFailure(t *testing.T) {
	h := newHarness(t, scriptedDevice())
	h.sw.events = newNATSPublisher(&recordingConn{err: errors.New("nats: connection closed")}, "")

	snap, err := h.sw.Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.IsEmpty())
}
