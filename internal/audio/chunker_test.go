package audio

import "testing"

func TestChunkerExactFrames(t *testing.T) {
	chunker := NewChunker(4)

	chunker.Write([]int16{1, 2, 3})
	if _, ok := chunker.Next(); ok {
		t.Fatal("Expected no frame with 3 of 4 samples pending")
	}

	chunker.Write([]int16{4, 5, 6, 7, 8, 9})

	first, ok := chunker.Next()
	if !ok || !first.Equal(Frame{1, 2, 3, 4}) {
		t.Errorf("Expected [1 2 3 4], got %v (ok=%v)", first, ok)
	}

	second, ok := chunker.Next()
	if !ok || !second.Equal(Frame{5, 6, 7, 8}) {
		t.Errorf("Expected [5 6 7 8], got %v (ok=%v)", second, ok)
	}

	if pending := chunker.GetStats().Pending; pending != 1 {
		t.Errorf("Expected 1 pending sample, got %d", pending)
	}

	// Frames handed out are owned by the caller
	chunker.Write([]int16{10, 11, 12})
	if !first.Equal(Frame{1, 2, 3, 4}) {
		t.Errorf("Expected earlier frame to be unaffected, got %v", first)
	}
}

func TestChunkerFlushPadsWithSilence(t *testing.T) {
	chunker := NewChunker(4)
	chunker.Write([]int16{1, 2})

	frame, ok := chunker.Flush()
	if !ok {
		t.Fatal("Expected flush to return the partial frame")
	}
	if !frame.Equal(Frame{1, 2, 0, 0}) {
		t.Errorf("Expected [1 2 0 0], got %v", frame)
	}

	if _, ok := chunker.Flush(); ok {
		t.Error("Expected nothing left to flush")
	}

	stats := chunker.GetStats()
	if stats.FramesOut != 1 || stats.PaddedFrames != 1 || stats.SamplesIn != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
