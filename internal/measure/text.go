package measure

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// sniffLen is how much of a file is inspected for NUL bytes.
const sniffLen = 8000

// textExtensions are treated as text without reading the file.
var textExtensions = map[string]bool{
	// JavaScript/TypeScript
	".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".mjs": true, ".cjs": true,
	// Config
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	// Docs and markup
	".md": true, ".txt": true, ".html": true, ".css": true, ".scss": true, ".less": true,
	".xml": true, ".svg": true, ".sh": true, ".bash": true, ".zsh": true,
	// Languages
	".py": true, ".rb": true, ".go": true, ".rs": true, ".java": true, ".kt": true, ".swift": true,
	".c": true, ".cpp": true, ".h": true, ".hpp": true, ".cs": true,
	// Data and schema
	".sql": true, ".graphql": true, ".proto": true,
	// Dotfiles
	".env": true, ".gitignore": true, ".dockerignore": true,
	".editorconfig": true, ".prettierrc": true, ".eslintrc": true,
}

// IsTextFile reports whether path holds text: a known text extension, or
// no NUL byte within the first 8000 bytes. Unreadable files are not text.
func IsTextFile(path string) bool {
	if textExtensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) < 0
}

// CountLines counts newline-terminated lines, plus a final unterminated one.
func CountLines(r io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var (
		lines int64
		last  byte
		seen  bool
	)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			lines += int64(bytes.Count(buf[:n], []byte{'\n'}))
			last = buf[n-1]
			seen = true
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if seen && last != '\n' {
		lines++
	}
	return lines, nil
}
