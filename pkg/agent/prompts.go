package agent

import (
	"fmt"
	"strings"

	"github.com/scenariolabs/verdict/pkg/qa"
)

const planningTaskTemplate = `You are an expert web QA engineer with access to a browser.

Your task is to explore a website and create a structured test plan for a specific feature.

Website: %s
Scenario: %s

First, explore the website to understand how the feature works:
1. Visit the website and navigate to where the feature is used
2. Observe the UI elements and interactions related to the feature
3. Understand the normal user flow and potential edge cases

Then, create a structured test plan with the following format:
` + "```json" + `
{
  "test_cases": [
    {
      "id": "TC001",
      "description": "Brief description of test case",
      "steps": [
        "Step 1: Detailed instruction",
        "Step 2: Detailed instruction"
      ],
      "expected_result": "What should happen if the test passes"
    }
  ]
}
` + "```" + `

Include at least 4-6 test cases, covering:
- Basic functionality (normal usage)
- Edge cases (invalid inputs, boundary conditions)
- Error handling (how the system responds to incorrect usage)

IMPORTANT: You must output ONLY the JSON test plan in the exact format shown above. No additional text or explanations.
`

const executionTaskTemplate = `You are an expert web QA tester with access to a browser.

Your task is to execute a specific test case and determine if it passes or fails.

Website: %s
Test Case ID: %s
Description: %s

Steps to execute:
%s

Expected Result: %s

Execute these steps precisely and report the outcome in this format:
` + "```json" + `
{
  "actual_result": "Detailed description of what actually happened",
  "status": "PASS/FAIL/ERROR",
  "notes": "Any additional observations or notes about the execution"
}
` + "```" + `

IMPORTANT: You must output ONLY the JSON result in the exact format shown above. No additional text or explanations.
`

// PlanningTask builds the task description that asks the agent to
// explore the target and produce a structured test plan.
func PlanningTask(target, scenario string) string {
	return fmt.Sprintf(planningTaskTemplate, target, scenario)
}

// ExecutionTask builds the task description that asks the agent to
// execute one test case and report the outcome.
func ExecutionTask(target string, tc qa.TestCase) string {
	var steps strings.Builder
	for _, step := range tc.Steps {
		steps.WriteString("- ")
		steps.WriteString(step)
		steps.WriteString("\n")
	}
	return fmt.Sprintf(executionTaskTemplate,
		target, tc.ID, tc.Description,
		strings.TrimRight(steps.String(), "\n"),
		tc.ExpectedResult)
}
