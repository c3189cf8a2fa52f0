package chunker

import (
	"path/filepath"
	"strings"
)

type fileKindTag int

const (
	kindSource fileKindTag = iota
	kindDoc
	kindConfig
)

var docExtensions = map[string]bool{
	".md":  true,
	".rst": true,
	".txt": true,
}

// namedConfigFiles lists well-known configuration files matched by exact
// basename rather than extension, per the Parse stage's whitelist.
var namedConfigFiles = map[string]bool{
	"package.json":       true,
	"pyproject.toml":     true,
	"docker-compose.yml": true,
	"docker-compose.yaml": true,
	"dockerfile":         true,
	".env.example":       true,
	"go.mod":             true,
	"cargo.toml":         true,
	"requirements.txt":   true,
}

// fileKind classifies a path for dispatch, adapted from the teacher's
// detectLanguage in indexer_impl.go, extended with the doc/config
// distinction the Parse stage requires.
func fileKind(path string) fileKindTag {
	base := strings.ToLower(filepath.Base(path))
	if namedConfigFiles[base] {
		return kindConfig
	}
	ext := strings.ToLower(filepath.Ext(path))
	if docExtensions[ext] {
		return kindDoc
	}
	return kindSource
}

var extToLanguage = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cxx":   "cpp",
	".c":     "c",
	".rs":    "rust",
	".rb":    "ruby",
	".php":   "php",
	".cs":    "csharp",
	".scala": "scala",
	".kt":    "kotlin",
	".swift": "swift",
	".md":    "markdown",
	".rst":   "restructuredtext",
	".txt":   "text",
}

func languageFromExt(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extToLanguage[ext]; ok {
		return lang
	}
	return "text"
}
