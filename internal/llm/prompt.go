package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a strict budgeting assistant. You must classify a bank transaction into exactly one " +
	"category from the provided list. Output ONLY valid JSON matching the schema. Do not include extra keys, " +
	"Markdown or commentary."

const responseShape = `{"category":"...","confidence":0-1,"reasoning_short":"<=120 chars","is_transfer":true|false,` +
	`"suggested_rule":{"create_rule":true|false,"pattern":"","pattern_type":"substring|regex","category":""}}`

// buildUserPrompt renders the transaction context and the full category list.
func buildUserPrompt(input Input) string {
	subject := input.Merchant
	if strings.TrimSpace(subject) == "" {
		subject = input.Description
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Categories: %s\n", strings.Join(input.Categories, ", "))
	fmt.Fprintf(&sb, "Transaction: %s | amount: %s\n", subject, input.Amount.String())
	if input.Merchant != "" && input.Description != "" && input.Description != input.Merchant {
		fmt.Fprintf(&sb, "Bank description: %s\n", input.Description)
	}
	sb.WriteString("Mark is_transfer true for credit card payments and moves between the user's own accounts.\n")
	fmt.Fprintf(&sb, "Return JSON: %s", responseShape)
	return sb.String()
}
