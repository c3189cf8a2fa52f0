package wiki

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ferg-cod3s/conexus/internal/jobs"
	"github.com/ferg-cod3s/conexus/internal/llm"
	"github.com/ferg-cod3s/conexus/internal/vectorstore"
)

// Generator implements pipeline.WikiGenerator against a concrete LLM
// client, vector store, and wiki Store.
type Generator struct {
	LLM         llm.Client
	Model       string
	Vectors     vectorstore.VectorStore
	Store       *Store
	Jobs        *jobs.Store
	Concurrency int

	// DirtyRatioThreshold and SectionRenameThreshold are the spec's
	// incremental-regeneration cutoffs; both default to their documented
	// values when zero.
	DirtyRatioThreshold   float64
	SectionRenameThreshold float64
}

// plannedPage pairs a WikiPage awaiting content generation with the
// position it was planned for, so results can be written back into the
// right section after parallel generation completes.
type plannedPage struct {
	sectionIdx int
	pageIdx    int
	page       WikiPage
}

func (g *Generator) concurrency() int {
	if g.Concurrency <= 0 {
		return pageConcurrency
	}
	return g.Concurrency
}

// Generate implements pipeline.WikiGenerator. incremental selects between a
// full rebuild and the dirty-page-only path; changedPaths is ignored for a
// full rebuild.
func (g *Generator) Generate(ctx context.Context, repoID, commitHash string, incremental bool, changedPaths []string) (string, error) {
	if incremental {
		wikiID, err := g.regenerateIncremental(ctx, repoID, commitHash, changedPaths)
		if err == nil {
			return wikiID, nil
		}
		if !errors.Is(err, errFullRegenSuggested) {
			return "", err
		}
		// Fall through to a full rebuild; err carries the human-readable
		// reason but the caller only needs the resulting wiki id.
	}
	return g.generateFull(ctx, repoID, commitHash)
}

func (g *Generator) generateFull(ctx context.Context, repoID, commitHash string) (string, error) {
	clonePath := g.clonePath(ctx, repoID)
	repoSummary, err := BuildRepoSummary(ctx, g.Vectors, repoID, clonePath)
	if err != nil {
		return "", fmt.Errorf("build repo summary: %w", err)
	}

	outlineResult, err := g.LLM.Generate(ctx, BuildOutlinePrompt(repoSummary), llm.Params{Model: g.Model, Temperature: 0.3, MaxTokens: 2048})
	var outline Outline
	if err != nil {
		outline = defaultOutline(repoSummary)
	} else {
		outline = ParseOutline(outlineResult.Text, repoSummary)
	}

	wikiID := deterministicID(repoID, commitHash, "wiki")

	var planned []plannedPage
	sections := make([]WikiSection, len(outline.Sections))
	for si, outSec := range outline.Sections {
		sections[si] = WikiSection{
			ID:         deterministicID(wikiID, outSec.Title, fmt.Sprintf("section-%d", si+1)),
			WikiID:     wikiID,
			Title:      outSec.Title,
			OrderIndex: si + 1, // order 0 is reserved for quick-start
		}
		for pi, op := range outSec.Pages {
			pageID := deterministicID(sections[si].ID, op.Title, fmt.Sprintf("page-%d", pi))
			page := WikiPage{
				ID:            pageID,
				SectionID:     sections[si].ID,
				Title:         op.Title,
				Importance:    op.Importance,
				RelevantFiles: op.RelevantFiles,
				OrderIndex:    pi,
			}
			planned = append(planned, plannedPage{sectionIdx: si, pageIdx: pi, page: page})
		}
	}

	results := g.generatePagesParallel(ctx, repoID, planned)
	for _, pp := range planned {
		rendered := results[pp.page.ID]
		sections[pp.sectionIdx].Pages = append(sections[pp.sectionIdx].Pages, rendered)
	}
	for si := range sections {
		byOrder := sections[si].Pages
		sortPagesByOrder(byOrder)
		sections[si].Pages = byOrder
	}

	// Summaries feed the navigation page, so every technical page's body
	// must exist before quick-start generation.
	summaries := make(map[string]string, len(planned))
	for _, pp := range planned {
		page := results[pp.page.ID]
		summary, err := summarizePage(ctx, g.LLM, g.Model, page.Title, page.Body)
		if err != nil {
			summary = ""
		}
		page.Summary = summary
		summaries[page.Title] = summary
		results[pp.page.ID] = page
		for si := range sections {
			for i, p := range sections[si].Pages {
				if p.ID == page.ID {
					sections[si].Pages[i] = page
				}
			}
		}
	}

	overviewID := deterministicID(wikiID, "quick-start", "overview")
	navID := deterministicID(wikiID, "quick-start", "navigation")
	qs := quickStartSection(deterministicID(wikiID, "quick-start"), overviewID, navID)
	qs.Pages[0].Body = buildOverviewBody(outline, repoSummary)
	qs.Pages[1].Body = buildNavigationBody(sections, summaries)

	w := Wiki{
		ID:         wikiID,
		RepoID:     repoID,
		Title:      outline.Title,
		CommitHash: commitHash,
		Sections:   append([]WikiSection{qs}, sections...),
	}

	if err := g.Store.Replace(ctx, w); err != nil {
		return "", fmt.Errorf("persist wiki %s: %w", wikiID, err)
	}
	return wikiID, nil
}

// generatePagesParallel runs the Planner/Diagram/Writer pipeline for every
// planned page under a bounded semaphore, collecting results into a map
// keyed by page id. A goroutine's failure degrades that single page to a
// placeholder body rather than failing the whole generation.
func (g *Generator) generatePagesParallel(ctx context.Context, repoID string, planned []plannedPage) map[string]WikiPage {
	sem := make(chan struct{}, g.concurrency())
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[string]WikiPage, len(planned))

	for _, pp := range planned {
		wg.Add(1)
		sem <- struct{}{}
		go func(p WikiPage) {
			defer wg.Done()
			defer func() { <-sem }()

			rendered := g.generateOnePage(ctx, repoID, p)

			mu.Lock()
			results[p.ID] = rendered
			mu.Unlock()
		}(pp.page)
	}
	wg.Wait()
	return results
}

// generateOnePage runs the Planner/Diagram/Writer sub-agents for one page,
// falling back to a monolithic call, then to progressive context
// truncation, if any step fails.
func (g *Generator) generateOnePage(ctx context.Context, repoID string, page WikiPage) WikiPage {
	context_, err := buildPageContext(ctx, g.Vectors, repoID, page)
	if err != nil {
		context_ = ""
	}

	body, err := g.renderPage(ctx, page.Title, context_)
	if err != nil {
		for _, frac := range degradationLadder {
			degraded := truncateContext(context_, frac)
			body, err = generateMonolithic(ctx, g.LLM, g.Model, page.Title, degraded)
			if err == nil {
				break
			}
		}
	}
	if err != nil {
		body = fmt.Sprintf("_Content for %q could not be generated._", page.Title)
	}

	page.Body = body
	return page
}

// renderPage runs the three-agent pipeline; any sub-agent error falls back
// to one monolithic call for this page.
func (g *Generator) renderPage(ctx context.Context, title, context_ string) (string, error) {
	plan, err := planPage(ctx, g.LLM, g.Model, title, context_)
	if err != nil {
		return generateMonolithic(ctx, g.LLM, g.Model, title, context_)
	}

	var diagrams []diagramSpec
	if len(plan.Diagrams) > 0 {
		diagrams, err = planDiagrams(ctx, g.LLM, g.Model, plan.Diagrams, context_)
		if err != nil {
			return generateMonolithic(ctx, g.LLM, g.Model, title, context_)
		}
	}

	body, err := writePage(ctx, g.LLM, g.Model, title, plan.Subsections, context_)
	if err != nil {
		return generateMonolithic(ctx, g.LLM, g.Model, title, context_)
	}

	return substitutePlaceholders(body, diagrams), nil
}

func sortPagesByOrder(pages []WikiPage) {
	for i := 1; i < len(pages); i++ {
		for j := i; j > 0 && pages[j].OrderIndex < pages[j-1].OrderIndex; j-- {
			pages[j], pages[j-1] = pages[j-1], pages[j]
		}
	}
}

func buildOverviewBody(outline Outline, summary RepoSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", outline.Title)
	b.WriteString("## Sections\n\n")
	for _, s := range outline.Sections {
		fmt.Fprintf(&b, "- %s\n", s.Title)
	}
	if len(summary.LanguageHisto) > 0 {
		b.WriteString("\n## Languages\n\n")
		for lang, count := range summary.LanguageHisto {
			fmt.Fprintf(&b, "- %s: %d files\n", lang, count)
		}
	}
	return b.String()
}

func buildNavigationBody(sections []WikiSection, summaries map[string]string) string {
	var b strings.Builder
	b.WriteString("# Content Navigation\n\n")
	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n\n", s.Title)
		for _, p := range s.Pages {
			summary := summaries[p.Title]
			if summary == "" {
				summary = p.Summary
			}
			fmt.Fprintf(&b, "- **%s**: %s\n", p.Title, summary)
		}
	}
	return b.String()
}

// buildPageContext retrieves the code chunks most relevant to a page,
// preferring its outline-declared RelevantFiles, and renders them as a
// "# path" header followed by chunk content so truncateContext's
// metadata-only degradation can find the headers.
func buildPageContext(ctx context.Context, store vectorstore.VectorStore, repoID string, page WikiPage) (string, error) {
	query := page.Title
	if len(page.RelevantFiles) > 0 {
		query = strings.Join(page.RelevantFiles, " ")
	}
	results, err := store.SearchBM25(ctx, query, vectorstore.SearchOptions{
		Limit:   40,
		Filters: map[string]interface{}{"repo_id": repoID},
	})
	if err != nil {
		return "", fmt.Errorf("search page context: %w", err)
	}

	wanted := make(map[string]bool, len(page.RelevantFiles))
	for _, f := range page.RelevantFiles {
		wanted[f] = true
	}

	var b strings.Builder
	seenPaths := make(map[string]bool)
	for _, r := range results {
		path, _ := r.Document.Metadata["file_path"].(string)
		if len(wanted) > 0 && !wanted[path] {
			continue
		}
		if !seenPaths[path] {
			fmt.Fprintf(&b, "# %s\n", path)
			seenPaths[path] = true
		}
		b.WriteString(r.Document.Content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// clonePath looks up repoID's on-disk clone path, returning "" (rather than
// an error) if the repository row is missing or has none yet — the repo
// summary degrades gracefully to file-summary-only in that case.
func (g *Generator) clonePath(ctx context.Context, repoID string) string {
	if g.Jobs == nil {
		return ""
	}
	repo, ok, err := g.Jobs.GetRepository(ctx, repoID)
	if err != nil || !ok {
		return ""
	}
	return repo.ClonePath
}

func deterministicID(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", h)[:24]
}
