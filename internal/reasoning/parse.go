package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripCodeFences removes a surrounding markdown fence such as ```json ... ```.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeJSONObject parses the first JSON object in a model reply. Fences
// and any prose around the object are ignored.
func decodeJSONObject(reply string, v any) error {
	body := stripCodeFences(reply)
	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in reply")
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
