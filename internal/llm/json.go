package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON extracts a JSON value from an LLM response and unmarshals it
// into v. The response might contain markdown code fences or wrapper text
// around the actual JSON.
func DecodeJSON(content string, v any) error {
	content = strings.TrimSpace(content)

	// Strip markdown code fences if present
	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) > 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	content = strings.TrimSpace(content)

	start := strings.IndexAny(content, "[{")
	if start < 0 {
		return fmt.Errorf("no JSON found in response")
	}
	var end int
	if content[start] == '[' {
		end = strings.LastIndex(content, "]")
	} else {
		end = strings.LastIndex(content, "}")
	}
	if end <= start {
		return fmt.Errorf("no JSON found in response")
	}

	if err := json.Unmarshal([]byte(content[start:end+1]), v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
