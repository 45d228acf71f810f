package messaging

import (
	"regexp"
	"strconv"
	"time"

	"revenda/internal/billingrules"
	"revenda/internal/types"
)

// placeholderPattern matches {{variableName}} placeholders in template
// bodies. Whitespace inside the braces is tolerated.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z][a-zA-Z0-9_]*)\s*\}\}`)

// RenderResult is the output of one template render.
type RenderResult struct {
	Body string
	// MissingVars lists placeholders the client snapshot could not fill.
	// Missing values render as an empty string; the worker logs them but
	// still delivers, matching the panel's historical behavior.
	MissingVars []string
}

// RenderTemplate substitutes {{var}} placeholders in the template body
// with values from the client snapshot.
//
// Supported variables:
//
//	clientName, clientPhone, planName, expiresAt (DD/MM/YYYY),
//	daysToExpiration
func RenderTemplate(body string, client *types.Client, today time.Time) RenderResult {
	vars := templateContext(client, today)

	var missing []string
	rendered := placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return ""
		}
		return value
	})

	return RenderResult{Body: rendered, MissingVars: missing}
}

// ValidateTemplateBody rejects template bodies referencing placeholders
// the renderer cannot fill. Run at template create/update so operators
// learn about typos before a rule fires.
func ValidateTemplateBody(body string) error {
	known := map[string]bool{
		"clientName":       true,
		"clientPhone":      true,
		"planName":         true,
		"expiresAt":        true,
		"daysToExpiration": true,
	}

	var unknown []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		if !known[match[1]] {
			unknown = append(unknown, match[1])
		}
	}
	if len(unknown) > 0 {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationTemplateVar,
			"template references unknown variables",
			nil,
			map[string]any{"unknown_variables": unknown},
		)
	}
	return nil
}

// templateContext builds the variable map for one client snapshot.
// Clients without an expiration date (lifetime plans) simply don't get the
// expiration variables; templates referencing them render empty.
func templateContext(client *types.Client, today time.Time) map[string]string {
	vars := map[string]string{
		"clientName":  client.Name,
		"clientPhone": client.Phone,
		"planName":    client.PlanName,
	}

	if client.ExpiresAt != nil {
		vars["expiresAt"] = client.ExpiresAt.Format("02/01/2006")
		vars["daysToExpiration"] = strconv.Itoa(billingrules.DaysBetween(today, *client.ExpiresAt))
	}

	return vars
}
