package chains

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	jsonFenceRe = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")
	htmlFenceRe = regexp.MustCompile("(?s)```html\\s*\\n(.*?)```")
)

// ExtractJSONFence pulls the payload out of a ```json fenced block. Models
// occasionally skip the fence, so a bare JSON object or array is accepted
// as a fallback.
func ExtractJSONFence(text string) (string, error) {
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed, nil
	}
	return "", fmt.Errorf("no json block found in model output")
}

// ExtractHTMLFence pulls slide HTML out of a ```html fenced block, falling
// back to the whole payload when the model answers with bare HTML.
func ExtractHTMLFence(text string) (string, error) {
	if m := htmlFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") {
		return trimmed, nil
	}
	return "", fmt.Errorf("no html block found in model output")
}

// decodeJSONFence parses a fenced JSON payload into out, failing loudly on
// malformed model output so untyped payloads never cross this boundary.
func decodeJSONFence(text string, out any) error {
	payload, err := ExtractJSONFence(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("malformed model output: %w", err)
	}
	return nil
}
