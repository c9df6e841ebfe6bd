package contextbuilder

import (
	"encoding/json"
	"strings"

	"github.com/coreclaw/agentcore/internal/providers"
)

// imageFromDataURL splits a "data:<mime>;base64,<data>" URL back into its
// parts for replay through a stateless provider. Anything else is passed
// through as a remote URL with no mime type, which providers.Message leaves
// the HTTP-fetching provider body to resolve.
func imageFromDataURL(url string) providers.ImageContent {
	const prefix = "data:"
	if !strings.HasPrefix(url, prefix) {
		return providers.ImageContent{Data: url}
	}
	rest := url[len(prefix):]
	mime, b64, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return providers.ImageContent{Data: url}
	}
	return providers.ImageContent{MimeType: mime, Data: b64}
}

// parseArgs decodes a tool call's raw JSON argument object text back into
// the map shape providers.ToolCall carries, tolerating malformed or empty
// input by returning an empty map.
func parseArgs(raw string) map[string]interface{} {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}
