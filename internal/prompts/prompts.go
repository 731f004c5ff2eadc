// File: internal/prompts/prompts.go
// Description: The fixed instruction blocks sent to the language and vision models,
// and the helpers that append the per-task context to them.

package prompts

import (
	"fmt"
	"strings"
)

// Template is a named system instruction.
type Template struct {
	ID      string
	Content string
}

var (
	VisionAnalysis = Template{
		ID: "vision_analysis",
		Content: `Analyze the webpage screenshot. Focus on identifying:
- Main interactive elements
- Key content areas
- Navigation structure
- Forms and input fields
Provide a structured description of the page layout and functionality.`,
	}

	TaskPlanning = Template{
		ID: "task_planning",
		Content: `Based on the webpage analysis and the task objective:
1. Identify the necessary steps to complete the task
2. List any potential navigation requirements
3. Identify required interactions with page elements
4. Highlight any data that needs to be extracted
Provide your response in a structured format that can be parsed for next actions.`,
	}

	// ElementSelection asks for a selector. The resolver only understands answers
	// that contain a line of the form: selector: "<css>".
	ElementSelection = Template{
		ID: "element_selection",
		Content: `Given the page content and target action:
1. Identify the most specific CSS selector or XPath for the target element
2. Provide fallback selectors if available
3. Describe the expected state of the element
4. List any preconditions for interaction`,
	}

	Navigation = Template{
		ID: "navigation",
		Content: `Based on the page analysis and navigation objective:
1. Identify the current page location and structure
2. Locate relevant navigation elements (links, buttons, menus)
3. Determine the most direct path to the target
4. List any potential obstacles or required interactions
Provide a clear, step-by-step navigation plan.`,
	}
)

// All returns every template, keyed by ID.
func All() map[string]Template {
	return map[string]Template{
		VisionAnalysis.ID:   VisionAnalysis,
		TaskPlanning.ID:     TaskPlanning,
		ElementSelection.ID: ElementSelection,
		Navigation.ID:       Navigation,
	}
}

// -- Builders --

// BuildNavigation combines the navigation instructions with the parsed page
// elements and the user's objective.
func BuildNavigation(elements []string, objective string) string {
	return fmt.Sprintf("%s\n\nPage Elements: %s\n\nNavigation Objective: %s",
		Navigation.Content, strings.Join(elements, "\n"), objective)
}

// BuildTaskPlanning combines the planning instructions with the vision model's analysis.
func BuildTaskPlanning(analysis, objective string) string {
	return fmt.Sprintf("%s\n\nPage Analysis: %s\n\nTask Objective: %s",
		TaskPlanning.Content, analysis, objective)
}

// BuildElementSelection asks the model to locate the described element in pageContent.
func BuildElementSelection(description, pageContent string) string {
	return fmt.Sprintf("%s\n\nElement Description: %s\n\nPage Content: %s",
		ElementSelection.Content, description, pageContent)
}
