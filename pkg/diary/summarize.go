// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package diary

import (
	"fmt"

	"github.com/craftmind/craftmind/pkg/task"
)

// SummarizeTool turns a terminal task result into a short first-person
// fact suitable for the journal and for later prompt context.
func SummarizeTool(tool string, args map[string]any, res task.Result) string {
	switch tool {
	case "goToKnownLocation":
		where := formatCoords(args)
		if name, _ := args["name"].(string); name != "" {
			where = fmt.Sprintf("%s (%s)", name, where)
		}
		if res.OK {
			return fmt.Sprintf("Went to %s.", where)
		}
		return fmt.Sprintf("Could not reach %s.", where)

	case "goToSomeone":
		who, _ := args["userName"].(string)
		if who == "" {
			who = "someone"
		}
		if res.OK {
			return fmt.Sprintf("Walked over to %s.", who)
		}
		return fmt.Sprintf("Could not reach %s.", who)

	case "mineResource":
		resource, _ := args["name"].(string)
		if resource == "" {
			resource = "resources"
		}
		if res.Progress != nil {
			if res.OK {
				return fmt.Sprintf("Mined %.0f of %.0f %s.", res.Progress.Current, res.Progress.Total, resource)
			}
			return fmt.Sprintf("Stopped mining %s at %.0f of %.0f.", resource, res.Progress.Current, res.Progress.Total)
		}
		if res.OK {
			return fmt.Sprintf("Finished mining %s.", resource)
		}
		return fmt.Sprintf("Failed to mine %s.", resource)

	case "eatFood":
		food, _ := args["name"].(string)
		if food == "" {
			food = "food"
		}
		if res.OK {
			return fmt.Sprintf("Ate %s.", food)
		}
		return fmt.Sprintf("Could not eat %s.", food)

	case "runAway":
		if res.OK {
			return "Ran away from danger."
		}
		return "Tried to run away but failed."

	case "attackSomeone":
		target, _ := args["userName"].(string)
		if target == "" {
			target, _ = args["name"].(string)
		}
		if target == "" {
			target = "a target"
		}
		if res.OK {
			return fmt.Sprintf("Attacked %s.", target)
		}
		return fmt.Sprintf("Failed to attack %s.", target)
	}

	if res.Summary != "" {
		return res.Summary
	}
	if res.OK {
		return fmt.Sprintf("%s: completed.", tool)
	}
	return fmt.Sprintf("%s: failed.", tool)
}

func formatCoords(args map[string]any) string {
	get := func(key string) any {
		if v, ok := args[key]; ok {
			return v
		}
		return "?"
	}
	return fmt.Sprintf("%v, %v, %v", get("x"), get("y"), get("z"))
}
