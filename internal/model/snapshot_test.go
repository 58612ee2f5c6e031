package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithPortStateCopyOnWrite(t *testing.T) {
	base := NewSnapshot()
	base.Statistics.Set("IP Address", "10.0.0.1")
	base.Statistics.Set(PortControlKey("1/0/1"), "false")
	base.Controls = append(base.Controls, ReloadControl(), PortToggle("1/0/1", false))

	next := base.WithPortState("1/0/1", true)

	v, _ := base.Stat(PortControlKey("1/0/1"))
	assert.Equal(t, "false", v)
	c, _ := base.Control(PortControlKey("1/0/1"))
	assert.Equal(t, "false", c.Value)

	v, _ = next.Stat(PortControlKey("1/0/1"))
	assert.Equal(t, "true", v)
	c, ok := next.Control(PortControlKey("1/0/1"))
	require.True(t, ok)
	assert.Equal(t, "true", c.Value)
	assert.Len(t, next.Controls, 2)
}

func TestWithPortStateAddsMissingToggle(t *testing.T) {
	next := NewSnapshot().WithPortState("1/0/9", false)
	c, ok := next.Control("Port Controls#Port 1/0/9")
	require.True(t, ok)
	assert.Equal(t, ControlToggle, c.Type)
	assert.Equal(t, "Off", c.LabelOff)
}

func TestSnapshotJSONKeepsOrder(t *testing.T) {
	s := NewSnapshot()
	s.Statistics.Set("b", "1")
	s.Statistics.Set("a", "2")
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"statistics":{"b":"1","a":"2"}`)
	assert.True(t, NewSnapshot().IsEmpty())
	assert.False(t, s.IsEmpty())
}
