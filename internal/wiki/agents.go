package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ferg-cod3s/conexus/internal/llm"
)

// pageConcurrency is the default bound on simultaneously generated pages.
const pageConcurrency = 5

// maxDiagramsPerPage caps the planner's diagram requirements per page.
const maxDiagramsPerPage = 2

// degradationLadder is the sequence of context-retention fractions tried
// when a monolithic generation call still hits a token-budget error; 0
// means metadata-only (file paths and symbol names, no code bodies).
var degradationLadder = []float64{0.5, 0.25, 0}

// pagePlan is the Planner sub-agent's JSON output.
type pagePlan struct {
	Subsections []string             `json:"subsections"`
	Diagrams    []diagramRequirement `json:"diagrams"`
}

type diagramRequirement struct {
	N           int    `json:"n"`
	Description string `json:"description"`
}

// planPage asks the Planner sub-agent for a subsection outline and a small
// number of diagram requirements for one technical page.
func planPage(ctx context.Context, client llm.Client, model, pageTitle, context_ string) (pagePlan, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You plan the structure of one documentation page. Respond with JSON only: " +
			`{"subsections": ["..."], "diagrams": [{"n": 1, "description": "..."}]}. ` +
			fmt.Sprintf("At most %d diagrams.", maxDiagramsPerPage)},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Page: %s\n\nRelevant code context:\n%s", pageTitle, context_)},
	}
	result, err := client.Generate(ctx, messages, llm.Params{Model: model, Temperature: 0.2, MaxTokens: 1024})
	if err != nil {
		return pagePlan{}, err
	}

	var plan pagePlan
	if err := json.Unmarshal([]byte(extractJSONObject(result.Text)), &plan); err != nil {
		return pagePlan{Subsections: []string{pageTitle}}, nil
	}
	if len(plan.Diagrams) > maxDiagramsPerPage {
		plan.Diagrams = plan.Diagrams[:maxDiagramsPerPage]
	}
	return plan, nil
}

// diagramSpec is one rendered diagram block, keyed by its plan-assigned N.
type diagramSpec struct {
	N       int
	Content string
}

// planDiagrams asks the Diagram sub-agent to render each requirement from
// a plan into a structured diagram block (expected to be Mermaid markup).
func planDiagrams(ctx context.Context, client llm.Client, model string, reqs []diagramRequirement, context_ string) ([]diagramSpec, error) {
	specs := make([]diagramSpec, 0, len(reqs))
	for _, req := range reqs {
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: "You produce one Mermaid diagram in a fenced ```mermaid code block, nothing else."},
			{Role: llm.RoleUser, Content: fmt.Sprintf("Diagram requirement: %s\n\nRelevant code context:\n%s", req.Description, context_)},
		}
		result, err := client.Generate(ctx, messages, llm.Params{Model: model, Temperature: 0.2, MaxTokens: 512})
		if err != nil {
			return nil, err
		}
		specs = append(specs, diagramSpec{N: req.N, Content: strings.TrimSpace(result.Text)})
	}
	return specs, nil
}

// writePage asks the Writer sub-agent for the page's Markdown body, using
// [DIAGRAM_N] placeholder tokens wherever a planned diagram belongs.
func writePage(ctx context.Context, client llm.Client, model, pageTitle string, subsections []string, context_ string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You write a documentation page in Markdown. Use [DIAGRAM_N] as a placeholder " +
			"token wherever a diagram with that number belongs; do not invent diagram content yourself."},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Page: %s\nSubsections: %s\n\nRelevant code context:\n%s",
			pageTitle, strings.Join(subsections, ", "), context_)},
	}
	result, err := client.Generate(ctx, messages, llm.Params{Model: model, Temperature: 0.4, MaxTokens: 4096})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// generateMonolithic is the fallback used when the Planner/Diagram/Writer
// pipeline fails for a page: one call producing the whole body directly,
// with no diagrams.
func generateMonolithic(ctx context.Context, client llm.Client, model, pageTitle, context_ string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You write a documentation page in Markdown, in a single pass."},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Page: %s\n\nRelevant code context:\n%s", pageTitle, context_)},
	}
	result, err := client.Generate(ctx, messages, llm.Params{Model: model, Temperature: 0.4, MaxTokens: 4096})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

var diagramPlaceholder = regexp.MustCompile(`\[DIAGRAM_(\d+)\]`)

// substitutePlaceholders replaces each [DIAGRAM_N] token with its matching
// diagram's content; a placeholder with no matching diagram is stripped
// rather than left in the rendered page.
func substitutePlaceholders(body string, specs []diagramSpec) string {
	byN := make(map[int]string, len(specs))
	for _, s := range specs {
		byN[s.N] = s.Content
	}
	return diagramPlaceholder.ReplaceAllStringFunc(body, func(token string) string {
		m := diagramPlaceholder.FindStringSubmatch(token)
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return ""
		}
		content, ok := byN[n]
		if !ok {
			return ""
		}
		return "\n\n" + content + "\n\n"
	})
}

// truncateContext degrades a code context string at fraction f of its
// original length (f == 0 keeps metadata lines only — those not looking
// like code body, identified by the caller prefixing them with "# ").
func truncateContext(context_ string, f float64) string {
	if f <= 0 {
		var kept []string
		for _, line := range strings.Split(context_, "\n") {
			if strings.HasPrefix(line, "# ") {
				kept = append(kept, line)
			}
		}
		return strings.Join(kept, "\n")
	}
	cut := int(float64(len(context_)) * f)
	if cut >= len(context_) {
		return context_
	}
	return context_[:cut]
}

// extractJSONObject finds the first top-level {...} block in s, tolerating
// surrounding prose the way ParseOutline tolerates prose around XML.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "{}"
	}
	return s[start : end+1]
}

// summarizePage asks for a short 2-3 sentence summary of an already-written
// page, used to feed the navigation page once every technical page exists.
func summarizePage(ctx context.Context, client llm.Client, model, pageTitle, body string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "Summarize the following documentation page in 2-3 sentences, no preamble."},
		{Role: llm.RoleUser, Content: fmt.Sprintf("# %s\n\n%s", pageTitle, body)},
	}
	result, err := client.Generate(ctx, messages, llm.Params{Model: model, Temperature: 0.2, MaxTokens: 256})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Text), nil
}
