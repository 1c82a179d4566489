package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/logging"
)

const fence = "```"

// maxEchoedResponse caps how much model output is carried in a parse error.
const maxEchoedResponse = 2000

// StripCodeFence removes one leading and one trailing Markdown fence, with or
// without a language tag. Unfenced text is only trimmed.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, fence) {
		s = s[len(fence):]
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && isLangTag(s[:nl]) {
			s = s[nl+1:]
		} else {
			s = strings.TrimLeftFunc(s, isTagRune)
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, fence)
	return strings.TrimSpace(s)
}

func isLangTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !isTagRune(r) {
			return false
		}
	}
	return true
}

func isTagRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}

// ParseResponse decodes the model's answer into a JSON object. It never
// returns partial data: anything but a single valid object is PARSE_FAILED.
func ParseResponse(raw string) (map[string]any, error) {
	text := StripCodeFence(raw)

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, common.NewAppError(common.CodeParse,
			fmt.Sprintf("model response is not valid JSON: %q", logging.Truncate(text, maxEchoedResponse)), err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, common.NewAppError(common.CodeParse,
			fmt.Sprintf("model response is not a JSON object: %q", logging.Truncate(text, maxEchoedResponse)), nil)
	}
	return obj, nil
}
