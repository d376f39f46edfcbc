package llm

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// jsonModeInstruction is appended to the system prompt by providers that
// have no native JSON output mode.
const jsonModeInstruction = "Respond with a single valid JSON object and nothing else. Do not wrap it in markdown."

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsJSONMode indicates the backend can enforce JSON output natively.
	SupportsJSONMode bool
}

// SystemPromptFor returns req.SystemPrompt, extended with a JSON-only
// instruction when req.JSONMode is set and native is false.
func SystemPromptFor(req CompletionRequest, native bool) string {
	if !req.JSONMode || native {
		return req.SystemPrompt
	}
	if req.SystemPrompt == "" {
		return jsonModeInstruction
	}
	return req.SystemPrompt + "\n\n" + jsonModeInstruction
}
