package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const readBufferSize = 4096

// Stream 将底层读端转换为分块通道，并按终止符收集完整回显
type Stream struct {
	chunks chan []byte
	done   chan struct{}
	once   sync.Once
	err    error
	decode Decoder
}

// NewStream 启动后台读取协程；读端关闭后通道随之关闭
func NewStream(r io.Reader, decode Decoder) *Stream {
	if decode == nil {
		decode = EnsureUTF8
	}
	s := &Stream{
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
		decode: decode,
	}
	go s.pump(r)
	return s
}

func (s *Stream) pump(r io.Reader) {
	defer close(s.chunks)
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.err = err
			return
		}
	}
}

// Close 停止投递分块；读端需由调用方关闭以结束阻塞中的 Read
func (s *Stream) Close() {
	s.once.Do(func() { close(s.done) })
}

// Drain 丢弃已缓冲但尚未消费的分块，返回被丢弃的文本
func (s *Stream) Drain() string {
	var sb strings.Builder
	for {
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				return sb.String()
			}
			sb.WriteString(s.decode(chunk))
		default:
			return sb.String()
		}
	}
}

// Collect 累积分块直至文本以终止符结尾
// settle > 0 时匹配后再静默等待 settle，期间有新数据则继续累积
func (s *Stream) Collect(ctx context.Context, timeout, settle time.Duration, terms Terminators) (Response, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var (
		sb       strings.Builder
		match    = MatchNone
		term     string
		settleT  *time.Timer
		settleCh <-chan time.Time
	)
	defer func() {
		if settleT != nil {
			settleT.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return Response{Text: sb.String()}, ctx.Err()
		case <-deadline.C:
			if match != MatchNone {
				return Response{Text: sb.String(), Match: match, Terminator: term}, nil
			}
			return Response{Text: sb.String()}, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case <-settleCh:
			return Response{Text: sb.String(), Match: match, Terminator: term}, nil
		case chunk, ok := <-s.chunks:
			if !ok {
				if match != MatchNone {
					return Response{Text: sb.String(), Match: match, Terminator: term}, nil
				}
				return Response{Text: sb.String()}, fmt.Errorf("%w: %v", ErrClosed, s.err)
			}
			sb.WriteString(s.decode(chunk))
			match, term = terms.Classify(sb.String())
			if match == MatchNone {
				if settleT != nil {
					settleT.Stop()
				}
				settleCh = nil
				continue
			}
			if settle <= 0 {
				return Response{Text: sb.String(), Match: match, Terminator: term}, nil
			}
			if settleT == nil {
				settleT = time.NewTimer(settle)
			} else {
				settleT.Reset(settle)
			}
			settleCh = settleT.C
		}
	}
}

// Expect 等待任一后缀出现，用于登录阶段
func (s *Stream) Expect(ctx context.Context, timeout time.Duration, suffixes ...string) (Response, error) {
	return s.Collect(ctx, timeout, 0, Terminators{Success: suffixes})
}
