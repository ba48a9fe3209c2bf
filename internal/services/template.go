package services

import "strings"

// DefaultContactName substitutes for {{name}} when the contact record
// carries no name.
const DefaultContactName = "Customer"

// RenderTemplate substitutes the {{name}} and {{phone}} placeholders of
// an auto-reply response template.
func RenderTemplate(template, name, phone string) string {
	if name == "" {
		name = DefaultContactName
	}
	return strings.NewReplacer(
		"{{name}}", name,
		"{{phone}}", phone,
	).Replace(template)
}
