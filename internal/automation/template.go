package automation

import (
	"strings"

	"example.com/careops/services/automation/internal/models"
)

// Resolve replaces every {{key}} placeholder in template with the context
// value for key. Unknown keys stay as literal placeholder text: a visible
// authoring mistake in the rendered message beats a crash. Keys prefixed
// with "_" are internal plumbing and never interpolated.
//
// Resolution is idempotent: a string with no remaining known placeholders
// comes back unchanged.
func Resolve(template string, context map[string]string) string {
	if template == "" || len(context) == 0 {
		return template
	}
	result := template
	for key, value := range context {
		if strings.HasPrefix(key, "_") {
			continue
		}
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// ResolveConfig resolves the templated fields of a rule config against an
// event payload. Subject, body and message are resolved independently with
// the same context; structural fields pass through untouched.
func ResolveConfig(cfg models.RuleConfig, context map[string]string) models.RuleConfig {
	resolved := cfg
	resolved.Subject = Resolve(cfg.Subject, context)
	resolved.Body = Resolve(cfg.Body, context)
	resolved.Message = Resolve(cfg.Message, context)
	return resolved
}
