package worker

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// Pipeline implements lossy log capture.
//
// Editor instances can emit log bursts faster than the sink keeps up. The
// reader layer never blocks on the channel send, so the worker's stdout
// buffer never fills and stalls the process under test.
//
//	Layer 1 (Reader): reads lines fast, drops if channel full - never blocks
//	Layer 2 (Sink):   consumes from channel at own pace (ring buffer, markers)
type Pipeline struct {
	instanceID int
	bufferSize int

	lineChan  chan string
	done      chan struct{}
	closeOnce sync.Once

	// health counters, read concurrently
	linesRead    int64
	linesDropped int64
	linesStored  int64
}

// NewPipeline creates a lossy log-capture pipeline for one worker.
func NewPipeline(instanceID, bufferSize int) *Pipeline {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	return &Pipeline{
		instanceID: instanceID,
		bufferSize: bufferSize,
		lineChan:   make(chan string, bufferSize),
		done:       make(chan struct{}),
	}
}

// RunReader is Layer 1: reads lines until EOF, dropping when the channel is
// full. Must run in a dedicated goroutine. Closes the channel at EOF.
func (p *Pipeline) RunReader(r io.Reader) {
	defer p.CloseChannel()

	scanner := bufio.NewScanner(r)

	// Editor log lines can be long (asset paths, callstacks).
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		p.FeedLine(scanner.Text())
	}
}

// FeedLine queues a line without blocking. Returns false if dropped.
func (p *Pipeline) FeedLine(line string) bool {
	atomic.AddInt64(&p.linesRead, 1)

	select {
	case p.lineChan <- line:
		return true
	default:
		atomic.AddInt64(&p.linesDropped, 1)
		return false
	}
}

// CloseChannel closes the line channel, terminating the sink goroutine.
// Called exactly once by the reader at EOF; idempotent via sync.Once.
func (p *Pipeline) CloseChannel() {
	p.closeOnce.Do(func() {
		close(p.lineChan)
		close(p.done)
	})
}

// Done returns a channel closed when the reader has reached EOF.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// RunSink is Layer 2: delivers lines to the sink at its own pace.
// Must run in a dedicated goroutine. Returns when the channel is closed.
func (p *Pipeline) RunSink(sink func(line string)) {
	for line := range p.lineChan {
		sink(line)
		atomic.AddInt64(&p.linesStored, 1)
	}
}

// Stats returns (read, dropped, stored) line counts.
func (p *Pipeline) Stats() (read, dropped, stored int64) {
	return atomic.LoadInt64(&p.linesRead),
		atomic.LoadInt64(&p.linesDropped),
		atomic.LoadInt64(&p.linesStored)
}

// DropRate returns the fraction of read lines that were dropped.
func (p *Pipeline) DropRate() float64 {
	read := atomic.LoadInt64(&p.linesRead)
	if read == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&p.linesDropped)) / float64(read)
}

// LogBuffer is a bounded ring of recent log lines.
type LogBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
	total int64
}

// NewLogBuffer creates a ring buffer holding at most max lines.
func NewLogBuffer(max int) *LogBuffer {
	if max < 1 {
		max = 2000
	}
	return &LogBuffer{max: max}
}

// Append adds a line, evicting the oldest when full.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)
	b.total++
	if len(b.lines) > b.max {
		// Shift instead of reslice so the backing array does not pin
		// evicted lines forever.
		copy(b.lines, b.lines[len(b.lines)-b.max:])
		b.lines = b.lines[:b.max]
	}
}

// Tail returns a copy of the last n lines (all lines if n <= 0 or n exceeds
// the buffered count).
func (b *LogBuffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.lines) {
		n = len(b.lines)
	}
	out := make([]string, n)
	copy(out, b.lines[len(b.lines)-n:])
	return out
}

// Len returns the number of currently buffered lines.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Total returns the total number of lines ever appended.
func (b *LogBuffer) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}
