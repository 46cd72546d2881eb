package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ledgerd/internal/conversation"
)

const classifySystemPrompt = `You classify messages sent to an accounting assistant.
Answer with a JSON object: {"type": string, "sub_type": string, "confidence": number, "entities": object}.
type is one of: query, command, greeting, help, unknown.
sub_type is one of: invoice_query, invoice_update, supplier_query, supplier_update,
transaction_query, payment_approval, report_request, user_management, general.
confidence is between 0 and 1. entities holds invoice numbers, supplier names, amounts, dates and statuses you find.`

const decideSystemPrompt = `You plan actions for an accounting assistant.
You may only call the functions listed under "functions". Answer with a JSON object:
{"action": string, "reasoning": string, "confidence": number, "functions": [{"name": string, "parameters": object}]}.
action is "execute_functions" when you call functions, "answer" when you reply directly, "clarify" when you need more input.
Parameters must follow each function's JSON schema.`

const respondSystemPrompt = `You are a concise accounting assistant replying on a chat channel.
Write a short plain-text answer based on the function results provided. Never invent figures.
If some actions failed or were not permitted, say so briefly without technical detail.`

// renderHistory formats the context window, oldest first.
func renderHistory(msgs []conversation.Message) string {
	if len(msgs) == 0 {
		return "(no previous messages)"
	}
	var b strings.Builder
	for _, m := range msgs {
		who := "user"
		if m.Direction == conversation.DirectionOutbound {
			who = "assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func mustJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
