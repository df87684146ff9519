package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/pantry/internal/common"
)

// extractJSONObject returns the outermost {...} span of a model reply,
// ignoring markdown fences and any prose around it.
func extractJSONObject(content string) (string, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in response", common.ErrMalformedResponse)
	}
	return content[start : end+1], nil
}
