package library

import (
	_ "embed"
	"encoding/json"

	"github.com/promptdrive/promptdrive/internal/prompt"
)

//go:embed sample-prompts.json
var samplePromptsJSON []byte

// Samples returns the bundled starter prompts. Falls back to a small
// hardcoded set if the embedded file is unreadable, so first-run seeding
// never fails outright.
func Samples() prompt.Library {
	var parsed struct {
		Prompts prompt.Library `json:"prompts"`
	}

	if err := json.Unmarshal(samplePromptsJSON, &parsed); err == nil && len(parsed.Prompts) > 0 {
		return parsed.Prompts
	}

	return prompt.Library{
		"reviseEnglish": "Please revise the following text to improve its English grammar, clarity, and flow while maintaining the original meaning:",
		"summarize":     "Please provide a concise summary of the following text, highlighting the key points and main ideas:",
		"explain":       "Please explain the following concept in simple terms that a beginner would understand:",
		"translate":     "Please translate the following text to English, maintaining the original tone and meaning:",
		"codeReview":    "Please review the following code for best practices, potential bugs, and suggestions for improvement:",
	}
}
