// Package manuscript finds citations in the Markdown sources of a
// manuscript.
package manuscript

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// citePattern matches pandoc-style "@prefix:value" citations that are not
// part of a word or email address. The value ends on a letter, digit or
// slash so trailing punctuation stays outside.
var citePattern = regexp.MustCompile(`(?:^|[^\w@])@([a-zA-Z0-9][\w:.#$%&\-+?<>~/]*[a-zA-Z0-9/])`)

// crossRefPrefixes are pandoc-crossref labels, not citations.
var crossRefPrefixes = map[string]bool{
	"fig": true,
	"tbl": true,
	"eq":  true,
	"sec": true,
	"lst": true,
}

// Files returns the Markdown files of dir sorted by name.
func Files(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)
	return matches, nil
}

// Citations returns the citations of the Markdown files in dir in order of
// first appearance, reading files in name order.
func Citations(dir string) ([]string, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, fmt.Errorf("list manuscript files: %w", err)
	}
	var all []string
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read manuscript file: %w", err)
		}
		all = append(all, Scan(data)...)
	}
	return unique(all), nil
}

// Scan returns the citations in Markdown text in order of first
// appearance. Fenced code blocks are skipped.
func Scan(text []byte) []string {
	var out []string
	inFence := false
	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		for _, m := range citePattern.FindAllStringSubmatch(line, -1) {
			if isCitation(m[1]) {
				out = append(out, m[1])
			}
		}
	}
	return unique(out)
}

func isCitation(key string) bool {
	prefix, _, found := strings.Cut(key, ":")
	return found && !crossRefPrefixes[strings.ToLower(prefix)]
}

func unique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
