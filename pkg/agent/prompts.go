// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"strings"
)

func chatSystemPrompt(username string) string {
	return fmt.Sprintf(`You are %s, a helpful companion bot living inside a Minecraft world.
You chat with players in plain language. Keep replies short (one or two sentences),
friendly and concrete. You never invent coordinates or facts you do not know;
say so instead. Do not use markdown.`, username)
}

func plannerSystemPrompt(toolBlock string) string {
	return fmt.Sprintf(`You are the planning module of a Minecraft companion bot.
A player gives you a command. Respond with ONLY a JSON object, no prose:

{"say": "<short message to the player, may be empty>", "tool": "<tool name or null>", "args": {<tool arguments>}}

Rules:
- Use exactly one tool from the list below, or null when the command needs no action.
- Fill every required argument. Use known place coordinates when given.
- Numbers must be JSON numbers, not strings.

Available tools:
%s`, toolBlock)
}

// promptSection renders one titled context block, or nothing when empty.
func promptSection(title, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return title + ":\n" + body + "\n\n"
}

func buildChatPrompt(actor, text, memories, diaryBlock, history string) string {
	var b strings.Builder
	b.WriteString(promptSection("Things you remember", memories))
	b.WriteString(promptSection("Recent events from your journal", diaryBlock))
	b.WriteString(promptSection("Recent conversation", history))
	fmt.Fprintf(&b, "%s says: %s\nReply to %s.", actor, text, actor)
	return b.String()
}

func buildPlanPrompt(actor, command, placesBlock, diaryBlock, history string) string {
	var b strings.Builder
	b.WriteString(promptSection("Known places", placesBlock))
	b.WriteString(promptSection("Recent events from your journal", diaryBlock))
	b.WriteString(promptSection("Recent commands", history))
	fmt.Fprintf(&b, "Player: %s\nCommand: %s\n\nReturn ONLY the JSON plan.", actor, command)
	return b.String()
}
