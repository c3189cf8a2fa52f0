package wiki

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/ferg-cod3s/conexus/internal/llm"
)

// outlineXML mirrors the LLM's expected <wiki_structure> response shape.
// Tolerant of surrounding prose: ParseOutline scans for the element rather
// than requiring the whole response to be well-formed XML.
type outlineXML struct {
	XMLName  xml.Name `xml:"wiki_structure"`
	Title    string   `xml:"title"`
	Sections []struct {
		Title string `xml:"title"`
		Pages []struct {
			Title      string `xml:"title"`
			Importance string `xml:"importance"`
			Files      string `xml:"relevant_files"`
		} `xml:"page"`
	} `xml:"section"`
}

// OutlinePage is one page entry from a parsed outline, before content
// generation.
type OutlinePage struct {
	Title         string
	Importance    Importance
	RelevantFiles []string
}

// OutlineSection is one section entry from a parsed outline.
type OutlineSection struct {
	Title string
	Pages []OutlinePage
}

// Outline is the parsed, generator-ready shape of the LLM's response, not
// yet including the quick-start section the generator prepends itself.
type Outline struct {
	Title    string
	Sections []OutlineSection
}

// defaultOutline is the one-section fallback used when the LLM's response
// cannot be parsed as a wiki_structure element at all.
func defaultOutline(repoSummary RepoSummary) Outline {
	files := make([]string, 0, len(repoSummary.TopFiles))
	for _, f := range repoSummary.TopFiles {
		files = append(files, f.FilePath)
	}
	return Outline{
		Title: "Repository Overview",
		Sections: []OutlineSection{
			{
				Title: "Overview",
				Pages: []OutlinePage{
					{Title: "Codebase Summary", Importance: ImportanceHigh, RelevantFiles: files},
				},
			},
		},
	}
}

// ParseOutline extracts a <wiki_structure> element from response, tolerating
// surrounding prose. On any parse failure it returns the one-section
// default rather than failing the job.
func ParseOutline(response string, repoSummary RepoSummary) Outline {
	start := strings.Index(response, "<wiki_structure")
	if start < 0 {
		return defaultOutline(repoSummary)
	}
	end := strings.LastIndex(response, "</wiki_structure>")
	if end < 0 || end < start {
		return defaultOutline(repoSummary)
	}
	end += len("</wiki_structure>")

	var parsed outlineXML
	if err := xml.Unmarshal([]byte(response[start:end]), &parsed); err != nil {
		return defaultOutline(repoSummary)
	}
	if len(parsed.Sections) == 0 {
		return defaultOutline(repoSummary)
	}

	out := Outline{Title: parsed.Title}
	if out.Title == "" {
		out.Title = "Repository Overview"
	}
	for _, s := range parsed.Sections {
		section := OutlineSection{Title: s.Title}
		for _, p := range s.Pages {
			section.Pages = append(section.Pages, OutlinePage{
				Title:         p.Title,
				Importance:    parseImportance(p.Importance),
				RelevantFiles: splitRelevantFiles(p.Files),
			})
		}
		out.Sections = append(out.Sections, section)
	}
	return out
}

func parseImportance(s string) Importance {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ImportanceHigh
	case "low":
		return ImportanceLow
	default:
		return ImportanceMedium
	}
}

func splitRelevantFiles(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BuildOutlinePrompt renders the repo summary into the outline request
// sent to the LLM. The quick-start section is never requested here — the
// generator assembles it itself after the outline comes back.
func BuildOutlinePrompt(summary RepoSummary) []llm.Message {
	var b strings.Builder
	b.WriteString("You are documenting a software repository. Propose a wiki outline.\n\n")

	if summary.ReadmeHead != "" {
		fmt.Fprintf(&b, "README excerpt:\n%s\n\n", summary.ReadmeHead)
	}

	b.WriteString("Top files by chunk count:\n")
	for _, f := range summary.TopFiles {
		fmt.Fprintf(&b, "- %s (%s, %d chunks)\n", f.FilePath, f.Language, f.ChunkCount)
	}

	if len(summary.LanguageHisto) > 0 {
		b.WriteString("\nLanguages:\n")
		langs := make([]string, 0, len(summary.LanguageHisto))
		for l := range summary.LanguageHisto {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		for _, l := range langs {
			fmt.Fprintf(&b, "- %s: %d files\n", l, summary.LanguageHisto[l])
		}
	}

	if len(summary.DirectoryTree) > 0 {
		b.WriteString("\nDirectory tree:\n")
		for _, d := range summary.DirectoryTree {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	b.WriteString("\nRespond with a <wiki_structure> element containing <title>, and one or more " +
		"<section><title>...</title><page><title>...</title><importance>high|medium|low</importance>" +
		"<relevant_files>comma,separated,paths</relevant_files></page>...</section> blocks. " +
		"Do not include a quick-start or navigation section; those are generated separately.")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: "You write precise, structured repository documentation outlines."},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

// quickStartSection assembles the system-generated section at order index
// 0. Its two pages' bodies are filled in by the generator once it has the
// full page list (the overview references section titles; the navigation
// page references page summaries), so this only stakes out their shape.
func quickStartSection(id string, overviewPageID, navPageID string) WikiSection {
	return WikiSection{
		ID:         id,
		Title:      "Quick Start",
		OrderIndex: QuickStartOrderIndex,
		Pages: []WikiPage{
			{ID: overviewPageID, Title: "Project Overview", Importance: ImportanceHigh, Type: PageTypeOverview, OrderIndex: 0},
			{ID: navPageID, Title: "Content Navigation", Importance: ImportanceHigh, Type: PageTypeNavigation, OrderIndex: 1},
		},
	}
}
