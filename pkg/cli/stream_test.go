package cli

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyErrorWins(t *testing.T) {
	terms := DefaultTerminators()

	m, term := terms.Classify("show foo\r\n% Invalid input detected at '^' marker.")
	assert.Equal(t, MatchError, m)
	assert.Equal(t, TermInvalidInput, term)

	m, term = terms.Classify("(Switch) #")
	assert.Equal(t, MatchSuccess, m)
	assert.Equal(t, TermPrompt, term)

	m, _ = terms.Classify("partial output")
	assert.Equal(t, MatchNone, m)
}

func TestCollectAcrossChunks(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewStream(pr, nil)

	go func() {
		_, _ = pw.Write([]byte("Temperature Sensors:\r"))
		time.Sleep(10 * time.Millisecond)
		_, _ = pw.Write([]byte("(Switch) #"))
	}()

	resp, err := s.Collect(context.Background(), time.Second, 0, DefaultTerminators())
	require.NoError(t, err)
	assert.Equal(t, "Temperature Sensors:\r(Switch) #", resp.Text)
	assert.Equal(t, MatchSuccess, resp.Match)
	assert.True(t, resp.EndsWith("#"))
}

func TestCollectTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := NewStream(pr, nil)

	go func() { _, _ = pw.Write([]byte("no terminator here")) }()

	resp, err := s.Collect(context.Background(), 50*time.Millisecond, 0, DefaultTerminators())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "no terminator here", resp.Text)
}

func TestCollectSettleKeepsReading(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewStream(pr, nil)

	go func() {
		_, _ = pw.Write([]byte("IP Address..... 10.0.0.1\n"))
		time.Sleep(5 * time.Millisecond)
		_, _ = pw.Write([]byte("(Switch) #"))
	}()

	resp, err := s.Collect(context.Background(), time.Second, 100*time.Millisecond, DefaultTerminators())
	require.NoError(t, err)
	assert.Equal(t, "IP Address..... 10.0.0.1\n(Switch) #", resp.Text)
	assert.Equal(t, TermPrompt, resp.Terminator)
}

func TestCollectPeerClosed(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewStream(pr, nil)
	require.NoError(t, pw.Close())

	_, err := s.Collect(context.Background(), time.Second, 0, DefaultTerminators())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDrainDiscardsStaleChunks(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewStream(pr, nil)

	_, err := pw.Write([]byte("stale"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.chunks) == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, "stale", s.Drain())
	assert.Equal(t, "", s.Drain())
}

type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	return copy(p, "--More-- or (q)uit"), nil
}

// 缓冲已满且无人消费时，Close 后读取协程必须退出
func TestCloseReleasesBlockedPump(t *testing.T) {
	s := NewStream(endlessReader{}, nil)
	require.Eventually(t, func() bool { return len(s.chunks) == cap(s.chunks) }, time.Second, time.Millisecond)

	s.Close()
	s.Close()

	exited := make(chan struct{})
	go func() {
		for range s.chunks {
		}
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutine still running after Close")
	}
}

func TestNewDecoderLatin1(t *testing.T) {
	dec := NewDecoder("latin1")
	assert.Equal(t, "25°C", dec([]byte{'2', '5', 0xB0, 'C'}))
	assert.Equal(t, "25°C", EnsureUTF8([]byte{'2', '5', 0xB0, 'C'}))
}
