package chunker

import (
	"strings"
	"testing"
)

// TestChunks_ShortInput verifies text within one window yields a single chunk.
func TestChunks_ShortInput(t *testing.T) {
	c := New(10, 0)
	chunks := c.Split("perovskite solar cells degrade under humidity")

	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "perovskite solar cells degrade under humidity" {
		t.Errorf("Unexpected chunk text: %q", chunks[0])
	}
}

// TestChunks_EmptyInput verifies empty and whitespace-only text yield no chunks.
func TestChunks_EmptyInput(t *testing.T) {
	c := New(10, 2)

	if chunks := c.Split(""); len(chunks) != 0 {
		t.Errorf("Empty input: expected 0 chunks, got %d", len(chunks))
	}
	if chunks := c.Split("   \n\t  "); len(chunks) != 0 {
		t.Errorf("Whitespace input: expected 0 chunks, got %d", len(chunks))
	}
}

// TestChunks_Deterministic verifies identical input and configuration produce
// byte-identical chunk sequences on repeated runs.
func TestChunks_Deterministic(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta epsilon ", 40)
	c := New(7, 2)

	first := c.Split(text)
	second := c.Split(text)

	if len(first) != len(second) {
		t.Fatalf("Chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Chunk %d differs:\n%q\n%q", i, first[i], second[i])
		}
	}
}

// TestChunks_Coverage verifies no text is silently dropped: every word of the
// input appears in the concatenation of chunks, in order.
func TestChunks_Coverage(t *testing.T) {
	words := make([]string, 53)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i%5)
	}
	text := strings.Join(words, " ")

	c := New(10, 3)
	chunks := c.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	// Non-overlapping reconstruction: strip the overlap prefix of every
	// chunk after the first and compare against the original word stream.
	var rebuilt []string
	for i, chunk := range chunks {
		parts := strings.Fields(chunk)
		if i > 0 {
			if len(parts) <= 3 {
				// Final window may be shorter than the overlap.
				continue
			}
			parts = parts[3:]
		}
		rebuilt = append(rebuilt, parts...)
	}

	if strings.Join(rebuilt, " ") != text {
		t.Errorf("Reconstructed text does not match input")
	}
}

// TestChunks_Restartable verifies the sequence can be ranged over twice.
func TestChunks_Restartable(t *testing.T) {
	c := New(3, 1)
	seq := c.Chunks("one two three four five six seven")

	var first, second int
	for range seq {
		first++
	}
	for range seq {
		second++
	}

	if first == 0 || first != second {
		t.Errorf("Expected identical non-zero counts, got %d and %d", first, second)
	}
}

// TestChunks_OverlapClamped verifies overlap >= window size still advances.
func TestChunks_OverlapClamped(t *testing.T) {
	c := New(4, 9)
	chunks := c.Split("a b c d e f g h i j")

	if len(chunks) == 0 {
		t.Fatal("Expected chunks, got none")
	}
	// With overlap clamped to maxWords-1 the window advances one word at a
	// time; the sequence must still terminate and end at the final word.
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(last, "j") {
		t.Errorf("Last chunk should reach end of input, got %q", last)
	}
}
