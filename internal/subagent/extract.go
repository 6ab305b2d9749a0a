package subagent

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/stellarlinkco/tinyclaw/internal/provider"
)

// ExtractStatus classifies the result of scanning assistant text for an
// embedded tool call.
type ExtractStatus int

const (
	// ExtractNotFound means the text carries no JSON object at all; the
	// reply is a plain answer.
	ExtractNotFound ExtractStatus = iota

	// ExtractFound means a well-formed call was recovered.
	ExtractFound

	// ExtractMalformed means a brace pair was present but did not decode
	// into a usable call. The loop treats this the same as not-found, but
	// the distinction is logged.
	ExtractMalformed
)

// Extraction is the parsed result. Call is only valid when Status is
// ExtractFound.
type Extraction struct {
	Status ExtractStatus
	Call   provider.ToolCall
	Reason string
}

// toolNameKeys are tried in order; models drift between these spellings.
var toolNameKeys = []string{"action", "tool", "name"}

// filenameAliases are adopted as "filename" when the call omits it.
var filenameAliases = []string{"file_path", "path"}

// ExtractToolCall recovers a tool call embedded in free-form assistant text.
// It slices from the first '{' to the last '}' and decodes that span as a
// JSON object, so prose before and after the object is tolerated. Anything
// that does not decode into an object with a recognised tool-name key is
// reported without raising.
func ExtractToolCall(text string) Extraction {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return Extraction{Status: ExtractNotFound}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return Extraction{Status: ExtractMalformed, Reason: "invalid JSON: " + err.Error()}
	}

	name := ""
	for _, key := range toolNameKeys {
		if v, ok := obj[key].(string); ok && v != "" {
			name = v
			break
		}
	}
	if name == "" {
		return Extraction{Status: ExtractMalformed, Reason: "no tool name key"}
	}

	args := make(map[string]any, len(obj))
	for k, v := range obj {
		switch k {
		case "action", "tool", "name":
		default:
			args[k] = v
		}
	}
	if _, ok := args["filename"]; !ok {
		for _, alias := range filenameAliases {
			if v, ok := args[alias]; ok {
				args["filename"] = v
				delete(args, alias)
				break
			}
		}
	}

	return Extraction{
		Status: ExtractFound,
		Call: provider.ToolCall{
			ID:        uuid.NewString(),
			Name:      name,
			Arguments: args,
		},
	}
}
