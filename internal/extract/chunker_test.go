package extract

import (
	"strings"
	"testing"

	"github.com/hearthmind/hearth/internal/state"
)

func msg(content string) state.Message {
	return state.Message{ID: content, Role: state.RoleHuman, Content: content}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"", 4},
		{"abc", 5},     // ceil(3/4)+4
		{"abcd", 5},    // ceil(4/4)+4
		{"abcde", 6},   // ceil(5/4)+4
		{strings.Repeat("x", 100), 29},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.content); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.content), got, tt.want)
		}
	}
}

func TestChunkMessages_SingleChunkWhenFits(t *testing.T) {
	analyze := []state.Message{msg("hello"), msg("world")}
	ctx := []state.Message{msg("earlier")}

	chunks := ChunkMessages(ctx, analyze, DefaultTokenBudget)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if len(chunks[0].Analyze) != 2 {
		t.Errorf("analyze truncated: %d messages", len(chunks[0].Analyze))
	}
	if len(chunks[0].Context) != 1 {
		t.Errorf("context dropped: %d messages", len(chunks[0].Context))
	}
}

func TestChunkMessages_ConcatenationReproducesInput(t *testing.T) {
	var analyze []state.Message
	for i := 0; i < 40; i++ {
		analyze = append(analyze, msg(strings.Repeat("a", 200)+string(rune('a'+i%26))))
	}

	// A small budget forces several chunks.
	chunks := ChunkMessages(nil, analyze, 1500)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	var flat []state.Message
	for _, ch := range chunks {
		flat = append(flat, ch.Analyze...)
	}
	if len(flat) != len(analyze) {
		t.Fatalf("chunks cover %d messages, want %d", len(flat), len(analyze))
	}
	for i := range flat {
		if flat[i].ID != analyze[i].ID {
			t.Fatalf("message %d out of order: %s != %s", i, flat[i].ID, analyze[i].ID)
		}
	}
}

func TestChunkMessages_BudgetRespected(t *testing.T) {
	var analyze []state.Message
	for i := 0; i < 30; i++ {
		analyze = append(analyze, msg(strings.Repeat("b", 150)))
	}

	budget := 2000
	remaining := budget - systemPromptReserve
	analyzeBudget := remaining - int(float64(remaining)*contextShare)

	chunks := ChunkMessages(nil, analyze, budget)
	for i, ch := range chunks {
		if len(ch.Analyze) > 1 && totalTokens(ch.Analyze) > analyzeBudget {
			t.Errorf("chunk %d over budget: %d > %d", i, totalTokens(ch.Analyze), analyzeBudget)
		}
	}
}

func TestChunkMessages_OversizedMessageAlone(t *testing.T) {
	huge := msg(strings.Repeat("z", 20000))
	analyze := []state.Message{msg("small"), huge, msg("after")}

	chunks := ChunkMessages(nil, analyze, 2000)
	found := false
	for _, ch := range chunks {
		for _, m := range ch.Analyze {
			if m.ID == huge.ID {
				found = true
				if len(ch.Analyze) != 1 {
					t.Errorf("oversized message shares a chunk with %d others", len(ch.Analyze)-1)
				}
			}
		}
	}
	if !found {
		t.Fatal("oversized message dropped")
	}
}

func TestChunkMessages_SlidingWindowContext(t *testing.T) {
	var analyze []state.Message
	for i := 0; i < 20; i++ {
		analyze = append(analyze, msg(strings.Repeat("c", 300)+string(rune('a'+i))))
	}

	chunks := ChunkMessages(nil, analyze, 2000)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Each later chunk's context must be a suffix of the previous chunk's
	// analyze slice.
	for i := 1; i < len(chunks); i++ {
		ctx := chunks[i].Context
		prev := chunks[i-1].Analyze
		if len(ctx) == 0 {
			t.Fatalf("chunk %d has no carried-over context", i)
		}
		if len(ctx) > len(prev) {
			t.Fatalf("chunk %d context longer than previous analyze", i)
		}
		offset := len(prev) - len(ctx)
		for j := range ctx {
			if ctx[j].ID != prev[offset+j].ID {
				t.Fatalf("chunk %d context is not a suffix of previous analyze", i)
			}
		}
	}
}

func TestChunkMessages_Empty(t *testing.T) {
	if chunks := ChunkMessages([]state.Message{msg("ctx")}, nil, 1000); chunks != nil {
		t.Errorf("expected nil for empty analyze, got %d chunks", len(chunks))
	}
}
