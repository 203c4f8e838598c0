package explorer

import (
	"path"
	"strings"

	"github.com/fruitsalade/explorer/pkg/models"
)

var editableTypes = map[string]bool{
	"text": true, "markdown": true, "json": true, "yaml": true,
	"javascript": true, "typescript": true, "html": true, "css": true,
	"python": true, "go": true, "shell": true, "xml": true, "csv": true, "log": true,
}

var editableExts = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".json": true, ".yaml": true,
	".yml": true, ".js": true, ".ts": true, ".html": true, ".htm": true,
	".css": true, ".py": true, ".go": true, ".sh": true, ".xml": true,
	".csv": true, ".log": true, ".ini": true, ".toml": true, ".conf": true,
	".env": true,
}

// IsEditable reports whether f opens in an editor rather than being
// offered for download. Either the type tag or the name's extension may
// qualify it.
func IsEditable(f models.FileRecord) bool {
	if editableTypes[strings.ToLower(f.Type)] {
		return true
	}
	return editableExts[strings.ToLower(path.Ext(f.Name))]
}

func isMarkdown(f models.FileRecord) bool {
	if strings.EqualFold(f.Type, "markdown") {
		return true
	}
	ext := strings.ToLower(path.Ext(f.Name))
	return ext == ".md" || ext == ".markdown"
}
