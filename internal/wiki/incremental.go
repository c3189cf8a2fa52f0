package wiki

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ferg-cod3s/conexus/internal/llm"
)

// defaultDirtyRatioThreshold is the spec's recommended cutoff above which
// incremental regeneration refuses to patch and asks for a full rebuild.
const defaultDirtyRatioThreshold = 0.65

// defaultSectionRenameThreshold triggers an LLM title-change suggestion
// once a section's dirty-page ratio reaches it.
const defaultSectionRenameThreshold = 0.8

// errFullRegenSuggested signals that the dirty ratio exceeded the
// threshold; Generate catches it and falls back to a full rebuild.
var errFullRegenSuggested = errors.New("wiki: full regeneration suggested")

// canonicalizePath normalizes a path for case-insensitive, separator-
// agnostic comparison between a changed-paths list and a page's
// RelevantFiles.
func canonicalizePath(p string) string {
	return strings.ToLower(filepath.ToSlash(p))
}

// isDirty reports whether page's relevant files intersect changedPaths,
// after canonicalizing both sides.
func isDirty(page WikiPage, changed map[string]bool) bool {
	for _, f := range page.RelevantFiles {
		if changed[canonicalizePath(f)] {
			return true
		}
	}
	return false
}

func (g *Generator) dirtyRatioThreshold() float64 {
	if g.DirtyRatioThreshold <= 0 {
		return defaultDirtyRatioThreshold
	}
	return g.DirtyRatioThreshold
}

func (g *Generator) sectionRenameThreshold() float64 {
	if g.SectionRenameThreshold <= 0 {
		return defaultSectionRenameThreshold
	}
	return g.SectionRenameThreshold
}

// regenerateIncremental implements the spec's incremental regeneration
// path: find dirty pages, refuse via errFullRegenSuggested if too many are
// dirty, otherwise regenerate just the dirty pages (plus any section whose
// dirty ratio crosses the rename threshold), and always regenerate
// quick-start last so its summaries stay consistent.
func (g *Generator) regenerateIncremental(ctx context.Context, repoID, commitHash string, changedPaths []string) (string, error) {
	existing, ok, err := g.Store.GetByRepo(ctx, repoID)
	if err != nil {
		return "", fmt.Errorf("load existing wiki for %s: %w", repoID, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: no existing wiki for %s to regenerate incrementally", errFullRegenSuggested, repoID)
	}

	changed := make(map[string]bool, len(changedPaths))
	for _, p := range changedPaths {
		changed[canonicalizePath(p)] = true
	}

	totalPages := 0
	dirtyPages := 0
	for _, sec := range existing.Sections {
		if sec.OrderIndex == QuickStartOrderIndex {
			continue // quick-start is always regenerated, never counted as dirty
		}
		for _, p := range sec.Pages {
			totalPages++
			if isDirty(p, changed) {
				dirtyPages++
			}
		}
	}

	if totalPages == 0 {
		return "", fmt.Errorf("%w: existing wiki has no technical pages to evaluate", errFullRegenSuggested)
	}

	ratio := float64(dirtyPages) / float64(totalPages)
	if ratio > g.dirtyRatioThreshold() {
		return "", fmt.Errorf("%w: %d/%d pages (%.0f%%) are dirty, above the %.0f%% threshold",
			errFullRegenSuggested, dirtyPages, totalPages, ratio*100, g.dirtyRatioThreshold()*100)
	}

	var allSummaries = make(map[string]string)
	for si, sec := range existing.Sections {
		if sec.OrderIndex == QuickStartOrderIndex {
			continue
		}
		sectionDirty := 0
		for pi, p := range sec.Pages {
			allSummaries[p.Title] = p.Summary
			if !isDirty(p, changed) {
				continue
			}
			sectionDirty++
			rendered := g.generateOnePage(ctx, repoID, p)
			summary, err := summarizePage(ctx, g.LLM, g.Model, rendered.Title, rendered.Body)
			if err == nil {
				rendered.Summary = summary
				allSummaries[rendered.Title] = summary
			}
			if err := g.Store.ReplacePage(ctx, rendered); err != nil {
				return "", fmt.Errorf("replace page %s: %w", rendered.ID, err)
			}
			existing.Sections[si].Pages[pi] = rendered
		}

		if len(sec.Pages) > 0 && float64(sectionDirty)/float64(len(sec.Pages)) >= g.sectionRenameThreshold() {
			if newTitle, ok := g.suggestSectionTitle(ctx, sec); ok {
				if err := g.Store.RenameSection(ctx, sec.ID, newTitle); err != nil {
					return "", fmt.Errorf("rename section %s: %w", sec.ID, err)
				}
			}
		}
	}

	if err := g.regenerateQuickStart(ctx, existing, allSummaries); err != nil {
		return "", err
	}

	if err := g.Store.UpdateWikiCommitHash(ctx, existing.ID, commitHash); err != nil {
		return "", fmt.Errorf("update wiki commit hash: %w", err)
	}
	return existing.ID, nil
}

// suggestSectionTitle asks the LLM whether a heavily-dirtied section's
// title should change, given its current title and the titles of its
// pages. ok is false if the model declines or the call fails.
func (g *Generator) suggestSectionTitle(ctx context.Context, sec WikiSection) (string, bool) {
	titles := make([]string, len(sec.Pages))
	for i, p := range sec.Pages {
		titles[i] = p.Title
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "Given a documentation section's current title and its page titles, " +
			"reply with a better title if one is clearly warranted, or reply exactly NONE if the current title " +
			"still fits."},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Current title: %s\nPages: %s", sec.Title, strings.Join(titles, ", "))},
	}
	result, err := g.LLM.Generate(ctx, messages, llm.Params{Model: g.Model, Temperature: 0.2, MaxTokens: 64})
	if err != nil {
		return "", false
	}
	suggestion := strings.TrimSpace(result.Text)
	if suggestion == "" || strings.EqualFold(suggestion, "NONE") || strings.EqualFold(suggestion, sec.Title) {
		return "", false
	}
	return suggestion, true
}

// regenerateQuickStart rebuilds the overview and navigation pages from the
// wiki's current section/page titles and summaries, writing them in place.
func (g *Generator) regenerateQuickStart(ctx context.Context, w Wiki, summaries map[string]string) error {
	var quickStart *WikiSection
	var technical []WikiSection
	for i := range w.Sections {
		if w.Sections[i].OrderIndex == QuickStartOrderIndex {
			quickStart = &w.Sections[i]
		} else {
			technical = append(technical, w.Sections[i])
		}
	}
	if quickStart == nil || len(quickStart.Pages) < 2 {
		return nil
	}

	outline := Outline{Title: w.Title}
	for _, s := range technical {
		outline.Sections = append(outline.Sections, OutlineSection{Title: s.Title})
	}

	overview := quickStart.Pages[0]
	overview.Body = buildOverviewBody(outline, RepoSummary{})
	if err := g.Store.ReplacePage(ctx, overview); err != nil {
		return fmt.Errorf("replace overview page: %w", err)
	}

	nav := quickStart.Pages[1]
	nav.Body = buildNavigationBody(technical, summaries)
	if err := g.Store.ReplacePage(ctx, nav); err != nil {
		return fmt.Errorf("replace navigation page: %w", err)
	}
	return nil
}
