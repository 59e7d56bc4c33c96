package service

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Rrens/practice-chat/internal/domain"
	"github.com/Rrens/practice-chat/internal/llm"
)

// AutoModelID is the catalogue entry that asks the service to pick a model
const AutoModelID = "select for me"

// complexity terms that, together with a long first message, call for the
// advanced model
var complexityIndicators = []string{
	"analyze",
	"complex",
	"optimize",
	"debug",
	"architecture",
	"security",
	"performance",
	"refactor",
	"design pattern",
	"algorithm",
}

const complexMessageLength = 500

// ModelOption is an entry of the model catalogue
type ModelOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IsAutoModel reports whether model requests automatic selection
func IsAutoModel(model string) bool {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case "", "auto", AutoModelID:
		return true
	}
	return false
}

// IsComplexMessage applies the lexical heuristic used by auto-selection
func IsComplexMessage(content string) bool {
	if utf8.RuneCountInString(content) <= complexMessageLength {
		return false
	}
	lower := strings.ToLower(content)
	for _, term := range complexityIndicators {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// SelectModel resolves the requested model against the first submitted message.
// Explicit models must match one of the allowed prefixes.
func (s *ChatService) SelectModel(requested, firstMessage string) (string, error) {
	if IsAutoModel(requested) {
		if IsComplexMessage(firstMessage) {
			return s.cfg.AdvancedModel, nil
		}
		return s.cfg.DefaultModel, nil
	}

	model := strings.TrimSpace(requested)
	if !llm.HasModelPrefix(model, s.cfg.AllowedModelPrefixes...) {
		return "", domain.ValidationError("model %q is not allowed", model)
	}
	return model, nil
}

// ListModels returns the auto entry followed by every allowed model of the
// configured providers, sorted by display name
func (s *ChatService) ListModels() []ModelOption {
	seen := make(map[string]bool)
	var options []ModelOption
	for _, id := range s.completer.ConfiguredModels() {
		if seen[id] || !llm.HasModelPrefix(id, s.cfg.AllowedModelPrefixes...) {
			continue
		}
		seen[id] = true
		options = append(options, ModelOption{ID: id, Name: FormatModelName(id)})
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Name < options[j].Name
	})

	return append([]ModelOption{{ID: AutoModelID, Name: "Select For Me (Auto)"}}, options...)
}

// FormatModelName turns a model id into a display name, e.g.
// "gpt-3.5-turbo" becomes "GPT 3.5 Turbo".
func FormatModelName(id string) string {
	parts := strings.Split(id, "-")
	for i, part := range parts {
		switch {
		case part == "":
		case i == 0:
			parts[i] = strings.ToUpper(part)
		case strings.Contains(part, "."):
		default:
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, " ")
}
