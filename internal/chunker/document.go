package chunker

import (
	"strings"
)

// chunkDocument splits Markdown/RST/plain-text content into
// "document_section" chunks at Markdown `#` heading boundaries. RST
// underline headings are not recognized. Content with no `#` headings
// becomes one section spanning the whole file.
func chunkDocument(path, content string) []Chunk {
	lines := strings.Split(content, "\n")

	type section struct {
		title     string
		startLine int
		lines     []string
	}
	var sections []section
	cur := section{title: "", startLine: 1}

	for i, line := range lines {
		if title, ok := markdownHeading(line); ok {
			if len(cur.lines) > 0 || cur.title != "" {
				sections = append(sections, cur)
			}
			cur = section{title: title, startLine: i + 1}
			continue
		}
		cur.lines = append(cur.lines, line)
	}
	sections = append(sections, cur)

	out := make([]Chunk, 0, len(sections))
	for _, s := range sections {
		body := strings.TrimSpace(strings.Join(s.lines, "\n"))
		if body == "" && s.title == "" {
			continue
		}
		out = append(out, Chunk{
			FilePath:   path,
			NodeType:   "document_section",
			SymbolName: s.title,
			StartLine:  s.startLine,
			EndLine:    s.startLine + len(s.lines),
			Content:    strings.TrimSpace(s.title + "\n" + body),
			Language:   languageFromExt(path),
		})
	}
	return out
}

func markdownHeading(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	i := 0
	for i < len(trimmed) && trimmed[i] == '#' {
		i++
	}
	if i == 0 || i > 6 {
		return "", false
	}
	return strings.TrimSpace(trimmed[i:]), true
}
