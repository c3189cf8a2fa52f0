package chunker

import (
	"path/filepath"
	"strings"
)

// chunkConfig emits a single "constant" chunk for a named configuration
// file — the Parse stage treats these as structured metadata sources
// rather than code to be split into functions.
func chunkConfig(path, content string) []Chunk {
	base := strings.ToLower(filepath.Base(path))
	meta := map[string]interface{}{"config_file": base}

	if base == "package.json" {
		meta["format"] = "json"
	}

	return []Chunk{{
		FilePath:  path,
		NodeType:  "constant",
		SymbolName: base,
		StartLine: 1,
		EndLine:   strings.Count(content, "\n") + 1,
		Content:   content,
		Language:  "config",
		Metadata:  meta,
	}}
}
