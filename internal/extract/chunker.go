package extract

import "github.com/hearthmind/hearth/internal/state"

// Token budget layout: a fixed reserve is held back for the system prompt,
// then 15% of the remainder goes to carried-over context and 85% to the
// messages being analyzed.
const (
	// DefaultTokenBudget bounds one scan request.
	DefaultTokenBudget = 10000

	systemPromptReserve = 1000
	contextShare        = 0.15
)

// EstimateTokens approximates the token cost of a message as
// ceil(chars/4)+4. A chars/4 heuristic, not tokenizer-accurate, but chunk
// counts stay reproducible across runs.
func EstimateTokens(content string) int {
	return (len(content)+3)/4 + 4
}

func totalTokens(msgs []state.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}

// Chunk is one token-budget-bounded unit of scan work.
type Chunk struct {
	Context []state.Message
	Analyze []state.Message
}

// ChunkMessages splits a (context, analyze) message pair into chunks that
// each fit the budget. When the analyze slice overflows, messages are
// pulled greedily from the front (oldest first), and each chunk's analyze
// slice seeds the next chunk's context — a sliding window. Deterministic
// for the same input. The only chunk allowed over budget is a single
// unavoidably-oversized message, which occupies a chunk alone.
func ChunkMessages(contextMsgs, analyze []state.Message, budget int) []Chunk {
	if len(analyze) == 0 {
		return nil
	}
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	remaining := budget - systemPromptReserve
	if remaining < 1 {
		remaining = 1
	}
	ctxBudget := int(float64(remaining) * contextShare)
	analyzeBudget := remaining - ctxBudget

	if totalTokens(analyze) <= analyzeBudget {
		return []Chunk{{
			Context: fitSuffix(contextMsgs, ctxBudget),
			Analyze: analyze,
		}}
	}

	var chunks []Chunk
	ctx := fitSuffix(contextMsgs, ctxBudget)
	i := 0
	for i < len(analyze) {
		// Always take at least one message, even if it alone exceeds budget.
		slice := []state.Message{analyze[i]}
		cost := EstimateTokens(analyze[i].Content)
		i++
		for i < len(analyze) && cost+EstimateTokens(analyze[i].Content) <= analyzeBudget {
			slice = append(slice, analyze[i])
			cost += EstimateTokens(analyze[i].Content)
			i++
		}
		chunks = append(chunks, Chunk{Context: ctx, Analyze: slice})
		ctx = fitSuffix(slice, ctxBudget)
	}
	return chunks
}

// fitSuffix returns the largest suffix of msgs whose token cost fits the
// budget.
func fitSuffix(msgs []state.Message, budget int) []state.Message {
	cost := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		cost += EstimateTokens(msgs[i].Content)
		if cost > budget {
			if i == len(msgs)-1 {
				return nil
			}
			return msgs[i+1:]
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return msgs
}
