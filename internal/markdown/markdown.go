// Package markdown reads the Markdown the assistant answers in: sections for
// terminal rendering, citation markers, and sentence-aligned excerpts.
package markdown

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	headingRegex  = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	citationRegex = regexp.MustCompile(`\[(\d{1,3})\]`)
)

// Doc is a parsed answer.
type Doc struct {
	// Preamble is the text before the first heading.
	Preamble string

	Sections []Section
}

// Section represents a heading and its content.
type Section struct {
	Level   int    // 1-6 for h1-h6
	Heading string // The heading text
	Path    string // Full path like "Setup > Install"
	Content string // Content under this heading
}

// Parse splits content into a preamble and heading sections.
// Headings inside fenced code blocks are left alone.
func Parse(content string) *Doc {
	doc := &Doc{}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var path []string
	var levels []int
	var current *Section
	var body strings.Builder
	inFence := false

	flush := func() {
		text := strings.TrimSpace(body.String())
		body.Reset()
		if current == nil {
			doc.Preamble = text
			return
		}
		current.Content = text
		doc.Sections = append(doc.Sections, *current)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}

		match := headingRegex.FindStringSubmatch(line)
		if inFence || match == nil {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		flush()

		level := len(match[1])
		heading := strings.TrimSpace(match[2])
		for len(levels) > 0 && levels[len(levels)-1] >= level {
			path = path[:len(path)-1]
			levels = levels[:len(levels)-1]
		}
		path = append(path, heading)
		levels = append(levels, level)

		current = &Section{
			Level:   level,
			Heading: heading,
			Path:    strings.Join(path, " > "),
		}
	}
	flush()

	return doc
}

// Citations returns the [n] source markers in content, in order of first use.
func Citations(content string) []int {
	matches := citationRegex.FindAllStringSubmatch(content, -1)

	out := make([]int, 0, len(matches))
	seen := make(map[int]bool)
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n == 0 || seen[n] {
			continue
		}
		out = append(out, n)
		seen[n] = true
	}
	return out
}

// Excerpt collapses whitespace in text and cuts it to at most max bytes,
// preferring a sentence boundary. A single overlong sentence is cut at a word.
func Excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max || max <= 0 {
		return text
	}

	var b strings.Builder
	for _, sentence := range splitSentences(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if b.Len()+len(sentence)+1 > max {
			break
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(sentence)
	}
	if b.Len() > 0 {
		return b.String() + " …"
	}

	cut := text[:max]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

// splitSentences splits text into sentences.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				// Likely an abbreviation like "Dr."
				if i > 1 && unicode.IsUpper(runes[i-1]) {
					continue
				}
				sentences = append(sentences, current.String())
				current.Reset()
			}
		}
	}

	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}

	return sentences
}
