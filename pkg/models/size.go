package models

import (
	"path"
	"strings"

	"github.com/dustin/go-humanize"
)

// DisplaySize formats a byte count for FileRecord.Size.
func DisplaySize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// ParseSize parses a display size back into bytes. Unparseable input
// yields 0.
func ParseSize(s string) int64 {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0
	}
	return int64(n)
}

var typeByExt = map[string]string{
	".txt":      "text",
	".md":       "markdown",
	".markdown": "markdown",
	".json":     "json",
	".yaml":     "yaml",
	".yml":      "yaml",
	".js":       "javascript",
	".ts":       "typescript",
	".html":     "html",
	".htm":      "html",
	".css":      "css",
	".py":       "python",
	".go":       "go",
	".sh":       "shell",
	".xml":      "xml",
	".csv":      "csv",
	".log":      "log",
	".png":      "image",
	".jpg":      "image",
	".jpeg":     "image",
	".gif":      "image",
	".svg":      "image",
	".pdf":      "pdf",
	".zip":      "archive",
	".gz":       "archive",
	".tar":      "archive",
}

// TypeFor derives the content-type tag from a file name's extension.
// Unknown extensions map to "file".
func TypeFor(name string) string {
	if t, ok := typeByExt[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return "file"
}
