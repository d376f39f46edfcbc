package llm

import (
	"strings"
	"testing"
)

func TestSystemPromptFor(t *testing.T) {
	tests := []struct {
		name   string
		req    CompletionRequest
		native bool
		want   string
	}{
		{"plain", CompletionRequest{SystemPrompt: "coach"}, false, "coach"},
		{"json native", CompletionRequest{SystemPrompt: "coach", JSONMode: true}, true, "coach"},
		{"json emulated", CompletionRequest{SystemPrompt: "coach", JSONMode: true}, false, "coach\n\n" + jsonModeInstruction},
		{"json emulated empty", CompletionRequest{JSONMode: true}, false, jsonModeInstruction},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SystemPromptFor(tc.req, tc.native); got != tc.want {
				t.Errorf("SystemPromptFor = %q, want %q", got, tc.want)
			}
		})
	}
	if !strings.Contains(jsonModeInstruction, "JSON") {
		t.Error("instruction should mention JSON")
	}
}
