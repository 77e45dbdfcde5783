package worker

import (
	"fmt"
	"strings"
	"testing"
)

// =============================================================================
// Tests: Pipeline
// =============================================================================

func TestPipeline_ReaderToSink(t *testing.T) {
	p := NewPipeline(0, 10)
	input := "alpha\nbeta\ngamma\n"

	var got []string
	done := make(chan struct{})
	go func() {
		p.RunSink(func(line string) { got = append(got, line) })
		close(done)
	}()

	p.RunReader(strings.NewReader(input))
	<-done

	if len(got) != 3 {
		t.Fatalf("sink received %d lines, want 3", len(got))
	}
	if got[0] != "alpha" || got[2] != "gamma" {
		t.Errorf("unexpected lines: %v", got)
	}

	read, dropped, stored := p.Stats()
	if read != 3 || dropped != 0 || stored != 3 {
		t.Errorf("Stats() = (%d, %d, %d), want (3, 0, 3)", read, dropped, stored)
	}
}

func TestPipeline_DropsWhenFull(t *testing.T) {
	p := NewPipeline(0, 2)

	// No sink running: the third line must be dropped, not block.
	for i := 0; i < 3; i++ {
		p.FeedLine(fmt.Sprintf("line %d", i))
	}

	read, dropped, _ := p.Stats()
	if read != 3 {
		t.Errorf("linesRead = %d, want 3", read)
	}
	if dropped != 1 {
		t.Errorf("linesDropped = %d, want 1", dropped)
	}
	if rate := p.DropRate(); rate < 0.3 || rate > 0.4 {
		t.Errorf("DropRate() = %f, want 1/3", rate)
	}
}

func TestPipeline_CloseChannelIdempotent(t *testing.T) {
	p := NewPipeline(0, 2)
	p.CloseChannel()
	p.CloseChannel() // must not panic

	select {
	case <-p.Done():
	default:
		t.Error("Done() not closed after CloseChannel")
	}
}

// =============================================================================
// Tests: LogBuffer
// =============================================================================

func TestLogBuffer_EvictsOldest(t *testing.T) {
	b := NewLogBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Append(fmt.Sprintf("line %d", i))
	}

	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	if b.Total() != 5 {
		t.Errorf("Total() = %d, want 5", b.Total())
	}

	got := b.Tail(0)
	want := []string{"line 3", "line 4", "line 5"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tail()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLogBuffer_TailSubset(t *testing.T) {
	b := NewLogBuffer(10)
	for i := 1; i <= 4; i++ {
		b.Append(fmt.Sprintf("line %d", i))
	}

	got := b.Tail(2)
	if len(got) != 2 || got[0] != "line 3" || got[1] != "line 4" {
		t.Errorf("Tail(2) = %v, want last two lines", got)
	}

	// Requesting more than buffered returns everything.
	if got := b.Tail(100); len(got) != 4 {
		t.Errorf("Tail(100) returned %d lines, want 4", len(got))
	}
}

func TestLogBuffer_TailIsCopy(t *testing.T) {
	b := NewLogBuffer(5)
	b.Append("original")

	tail := b.Tail(0)
	tail[0] = "mutated"

	if got := b.Tail(0)[0]; got != "original" {
		t.Errorf("buffer content changed through returned slice: %q", got)
	}
}
