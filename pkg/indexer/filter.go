package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"
)

// Directories that never contain user-authored source worth indexing.
var defaultExcludedDirs = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor", "dist", "build", "target", "out",
	"__pycache__", ".venv", "venv", ".idea", ".vscode",
}

// Binary and media extensions skipped without logging.
var defaultExcludedExts = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico", ".svg",
	".mp3", ".mp4", ".wav", ".avi", ".mov",
	".zip", ".tar", ".gz", ".bz2", ".7z",
	".pdf", ".doc", ".docx", ".xls", ".xlsx",
	".exe", ".dll", ".so", ".dylib", ".bin", ".o", ".a",
	".woff", ".woff2", ".ttf", ".eot",
	".db", ".sqlite", ".lock",
}

var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".sh":    "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
}

// extensionPriority feeds the importance score: source beats docs beats config.
var extensionPriority = map[string]float64{
	".go": 0.3, ".py": 0.3, ".ts": 0.3, ".tsx": 0.3, ".js": 0.3, ".jsx": 0.3,
	".rs": 0.3, ".java": 0.3, ".kt": 0.3, ".c": 0.25, ".cpp": 0.25, ".cs": 0.25,
	".rb": 0.25, ".php": 0.25, ".swift": 0.25,
	".md": 0.15, ".sql": 0.15, ".sh": 0.15,
	".json": 0.1, ".yaml": 0.1, ".yml": 0.1, ".toml": 0.1,
}

func (idx *Indexer) excluded(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range idx.excludedExts {
		if ext == e {
			return true
		}
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		for _, dir := range idx.excludedDirs {
			if part == dir {
				return true
			}
		}
	}
	return false
}

// fileID derives the stable deterministic item id for a path.
func fileID(path string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(path)))
	return hex.EncodeToString(sum[:])
}

// entityID derives the stable id for one (file, kind, name) entity.
func entityID(path, kind, name string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(path) + ":" + kind + ":" + name))
	return hex.EncodeToString(sum[:])
}

func languageFor(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

// importanceScore blends extension priority, modification recency, and path
// shallowness into an initial 0..1 score.
func importanceScore(path string, modTime time.Time, now time.Time) float64 {
	score := 0.3

	if p, ok := extensionPriority[strings.ToLower(filepath.Ext(path))]; ok {
		score += p
	} else {
		score += 0.05
	}

	age := now.Sub(modTime)
	switch {
	case age < 24*time.Hour:
		score += 0.2
	case age < 7*24*time.Hour:
		score += 0.1
	}

	depth := strings.Count(filepath.ToSlash(path), "/")
	switch {
	case depth <= 2:
		score += 0.2
	case depth <= 4:
		score += 0.1
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
