package service

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
)

const defaultQueueSize = 1024

// stream is an append-only line buffer fed through a bounded channel.
type stream struct {
	name  string
	queue chan string

	mx    sync.Mutex
	lines []string
}

func newStream(name string, size int) *stream {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &stream{
		name:  name,
		queue: make(chan string, size),
	}
}

// push never blocks for long: a full queue is collected into the buffer by
// the producer itself.
func (s *stream) push(line string) {
	for {
		select {
		case s.queue <- line:
			return
		default:
			s.collect()
		}
	}
}

// collect moves everything queued into the buffer and returns immediately
// when the queue is empty.
func (s *stream) collect() {
	s.mx.Lock()
	defer s.mx.Unlock()
	for {
		select {
		case line := <-s.queue:
			s.lines = append(s.lines, line)
		default:
			return
		}
	}
}

func (s *stream) snapshot() []string {
	s.collect()
	s.mx.Lock()
	defer s.mx.Unlock()
	return slices.Clone(s.lines)
}

// drain reads r line by line until EOF or until r is closed.
func (s *stream) drain(ctx context.Context, r io.ReadCloser) {
	defer func() {
		_ = r.Close()
	}()
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			s.push(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) && !errors.Is(err, os.ErrClosed) {
				slog.ErrorContext(ctx, "draining process output", "stream", s.name, "error", err)
			}
			return
		}
	}
}
