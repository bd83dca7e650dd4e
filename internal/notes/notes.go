package notes

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/russross/blackfriday/v2"
)

var (
	// ErrCodeBlock is returned when a note contains a fenced code block.
	ErrCodeBlock = errors.New("code blocks are not allowed")
	// ErrMalformed is returned for lines that are neither bullets nor continuations.
	ErrMalformed = errors.New("not a bullet or continuation line")
)

// Item is one bullet with its continuation lines.
type Item struct {
	Line         int
	Text         string
	Continuation []string
}

// String joins the bullet and its continuation into one line of text.
func (i Item) String() string {
	return strings.Join(append([]string{i.Text}, i.Continuation...), " ")
}

// Notes is a parsed note file.
type Notes struct {
	Items []Item
	Lines int
}

// Parse reads a note file and checks its structure.
func Parse(r io.Reader) (*Notes, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, errors.New("notes are not valid UTF-8")
	}

	n := &Notes{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		n.Lines++
		line := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~"):
			return nil, fmt.Errorf("line %d: %w", n.Lines, ErrCodeBlock)
		case isBullet(line):
			n.Items = append(n.Items, Item{Line: n.Lines, Text: strings.TrimSpace(line[1:])})
		case line != trimmed:
			if len(n.Items) == 0 {
				return nil, fmt.Errorf("line %d: continuation before first bullet", n.Lines)
			}
			last := &n.Items[len(n.Items)-1]
			last.Continuation = append(last.Continuation, trimmed)
		default:
			return nil, fmt.Errorf("line %d: %w", n.Lines, ErrMalformed)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}

	if hasCode(data) {
		return nil, ErrCodeBlock
	}
	return n, nil
}

// isBullet accepts "*" alone or followed by the bullet text. A line
// opening with "**" is emphasis.
func isBullet(line string) bool {
	return strings.HasPrefix(line, "*") && !strings.HasPrefix(line, "**")
}

// hasCode reports whether the Markdown renders any code block, which
// catches indented blocks the line rules let through as continuations.
func hasCode(data []byte) bool {
	md := blackfriday.New(blackfriday.WithExtensions(blackfriday.CommonExtensions))
	found := false
	md.Parse(data).Walk(func(node *blackfriday.Node, entering bool) blackfriday.WalkStatus {
		if entering && node.Type == blackfriday.CodeBlock {
			found = true
			return blackfriday.Terminate
		}
		return blackfriday.GoToNext
	})
	return found
}
