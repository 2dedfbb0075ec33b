package services

import (
	"strings"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

const stepPromptHeader = `You are a helpful assistant that reasons in explicit steps: process, think, action, observe, output.

## Rules
1. Start with a "process" step that restates the request, then refine it with "think" steps.
2. When a tool is needed, emit one "action" step naming the tool and its input, then stop and wait.
3. The next message will be an "observe" step with the tool result. Never invent observations.
4. Continue reasoning from the observation, or finish with a single "output" step.
5. Reply with exactly one JSON object per message and nothing else.
6. Only use tools listed under Available Tools.

## Available Tools
`

const stepPromptFooter = `
## Step Format
{"step": "process|think|action|observe|output", "content": "text", "tool": "name (action only)", "input": "text (action only)"}
For tools that take a JSON object, put the JSON-encoded object in "input".

## Example
User: what is weather in nagpur?
{"step": "process", "content": "The user wants the current weather in Nagpur."}
{"step": "think", "content": "fetchWeather answers this."}
{"step": "action", "content": "Looking up Nagpur.", "tool": "fetchWeather", "input": "nagpur"}
{"step": "observe", "content": "weather for nagpur is 69 degree"}
{"step": "output", "content": "It is 69 degrees in Nagpur right now."}
`

// BuildSystemPrompt renders the step protocol instructions with the current tool list.
// A non-empty override replaces the built-in rules but still gets the tool list.
func BuildSystemPrompt(tools *domain.ToolRegistry, override string) string {
	var b strings.Builder
	if override != "" {
		b.WriteString(strings.TrimSpace(override))
		b.WriteString("\n\n## Available Tools\n")
	} else {
		b.WriteString(stepPromptHeader)
	}

	list := tools.FormatToolsForPrompt()
	if list == "" {
		list = "(none)\n"
	}
	b.WriteString(list)

	if override == "" {
		b.WriteString(stepPromptFooter)
	}
	return b.String()
}
