package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchctl/switchctl/internal/testing/faketransport"
	"github.com/switchctl/switchctl/pkg/cli"
)

func newManager(ft *faketransport.Transport) *Manager {
	opts := DefaultOptions()
	opts.Password = "secret"
	return NewManager(ft, opts)
}

func TestEnsureEscalatedWithPassword(t *testing.T) {
	ft := faketransport.New().
		On("en", "en\r\nPassword:").
		On("secret", "\r\n(M4250) #")
	m := newManager(ft)

	ok, err := m.EnsureEscalated(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"en", "secret"}, ft.Calls())
	assert.Equal(t, 1, ft.Connects())
}

func TestEnsureEscalatedAlreadyPrivileged(t *testing.T) {
	ft := faketransport.New().On("en", "\r\n(M4250) #")
	m := newManager(ft)

	ok, err := m.EnsureEscalated(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"en"}, ft.Calls())
}

func TestEnsureEscalatedWrongPassword(t *testing.T) {
	ft := faketransport.New().
		On("en", "Password:").
		On("secret", "\r\nIncorrect Password!\r\n")
	m := newManager(ft)

	ok, err := m.EnsureEscalated(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureEscalatedConnectFailure(t *testing.T) {
	ft := faketransport.New()
	ft.ConnectErr = errors.New("connection refused")
	m := newManager(ft)

	ok, err := m.EnsureEscalated(context.Background())
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrConnect)
	assert.Empty(t, ft.Calls())
}

func TestRunPaginatedDrainsAllPages(t *testing.T) {
	ft := faketransport.New().
		On("show environment", "Temperature Sensors:\r\n1  x\r\n--More-- or (q)uit").
		On("-", "\r\nFans:\r\n--More-- or (q)uit", "\r\nPower Modules:\r\n(M4250) #")
	m := newManager(ft)
	require.NoError(t, m.EnsureConnected(context.Background()))

	text, err := m.RunPaginated(context.Background(), "show environment")
	require.NoError(t, err)
	assert.Equal(t, "Temperature Sensors:\r\n1  x\r\n--More-- or (q)uit"+
		"\r\nFans:\r\n--More-- or (q)uit"+
		"\r\nPower Modules:\r\n(M4250) #", text)
	assert.Equal(t, []string{"show environment", "-", "-"}, ft.Calls())
}

// 终止符出现后绝不再发送翻页键
func TestRunPaginatedNeverAdvancesPastTerminator(t *testing.T) {
	for pages := 0; pages < 5; pages++ {
		ft := faketransport.New()
		first := "page0\r\n(M4250) #"
		if pages > 0 {
			first = "page0\r\n--More-- or (q)uit"
			var rest []string
			for i := 1; i < pages; i++ {
				rest = append(rest, "pageN\r\n--More-- or (q)uit")
			}
			rest = append(rest, "last\r\n(M4250) #", "UNEXPECTED\r\n(M4250) #")
			ft.On("-", rest...)
		}
		ft.On("show port status all | exclude lag", first)
		m := newManager(ft)
		require.NoError(t, m.EnsureConnected(context.Background()))

		text, err := m.RunPaginated(context.Background(), "show port status all | exclude lag")
		require.NoError(t, err)
		assert.NotContains(t, text, "UNEXPECTED")

		calls := ft.Calls()
		advances := 0
		for _, c := range calls {
			if c == "-" {
				advances++
			}
		}
		assert.Equal(t, pages, advances, "pages=%d", pages)
	}
}

func TestRunPaginatedStallTimesOut(t *testing.T) {
	ft := faketransport.New().
		On("show environment", "--More-- or (q)uit").
		On("-", "stalled without terminator")
	m := newManager(ft)
	require.NoError(t, m.EnsureConnected(context.Background()))

	_, err := m.RunPaginated(context.Background(), "show environment")
	require.ErrorIs(t, err, cli.ErrTimeout)
	assert.False(t, m.Connected())
}

func TestRunPaginatedInvalidInput(t *testing.T) {
	ft := faketransport.New().On("show bogus", "\r\n% Invalid input detected at '^' marker.")
	m := newManager(ft)
	require.NoError(t, m.EnsureConnected(context.Background()))

	_, err := m.RunPaginated(context.Background(), "show bogus")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, []string{"show bogus"}, ft.Calls())
}

func TestTimeoutSwitching(t *testing.T) {
	ft := faketransport.New()
	m := newManager(ft)
	m.UseControlTimeout()
	m.UseStatisticsTimeout()
	assert.Equal(t, []time.Duration{3 * time.Second, 30 * time.Second}, ft.Timeouts())
}
