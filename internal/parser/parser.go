// Package parser turns meeting notes into ordered task entries. Each textual
// convention is a Grammar; a Parser tries its grammars in order and keeps the
// first one that matches anything.
package parser

import (
	"regexp"
	"strings"

	"meetingrelay/internal/domain"
)

type Grammar interface {
	Name() string
	Parse(text string) []domain.TaskEntry
}

var (
	// checklistMarker matches any checklist box at the start of a line. Checked boxes
	// end the previous description but never start an entry.
	checklistMarker   = regexp.MustCompile(`(?m)^[ \t]*-[ \t]*\[([ xX])\]`)
	// checklistBoundary ends a description at any box, wherever it sits in the line.
	checklistBoundary = regexp.MustCompile(`-[ \t]*\[[ xX]\]`)
	checklistItem     = regexp.MustCompile(`(?is)^\s*([\p{L}\p{N}_]+)\s+to\s+(.+)$`)
	labelPattern      = regexp.MustCompile(`(?is)Task:\s*(.+?)\s*Owner:\s*([\p{L}\p{N}_]+)`)
	whitespaceRun     = regexp.MustCompile(`\s*\n\s*`)
)

// Checklist parses "- [ ] Owner to description" items. A description runs until
// the next checklist box or the end of the text; embedded newlines become spaces.
type Checklist struct{}

func (Checklist) Name() string { return "checklist" }

func (Checklist) Parse(text string) []domain.TaskEntry {
	marks := checklistMarker.FindAllStringSubmatchIndex(text, -1)
	var entries []domain.TaskEntry
	for _, m := range marks {
		if text[m[2]:m[3]] != " " {
			continue
		}
		end := len(text)
		if b := checklistBoundary.FindStringIndex(text[m[1]:]); b != nil {
			end = m[1] + b[0]
		}
		sub := checklistItem.FindStringSubmatch(text[m[1]:end])
		if sub == nil {
			continue
		}
		desc := strings.TrimSpace(whitespaceRun.ReplaceAllString(sub[2], " "))
		if desc == "" {
			continue
		}
		entries = append(entries, domain.TaskEntry{RawText: desc, Owner: sub[1]})
	}
	return entries
}

// Label parses "Task: description Owner: name" pairs.
type Label struct{}

func (Label) Name() string { return "label" }

func (Label) Parse(text string) []domain.TaskEntry {
	var entries []domain.TaskEntry
	for _, sub := range labelPattern.FindAllStringSubmatch(text, -1) {
		desc := strings.TrimSpace(sub[1])
		if desc == "" {
			continue
		}
		entries = append(entries, domain.TaskEntry{RawText: desc, Owner: sub[2]})
	}
	return entries
}

type Parser struct {
	grammars []Grammar
}

// New returns a Parser over the given grammars. With none it uses Checklist then Label.
func New(grammars ...Grammar) *Parser {
	if len(grammars) == 0 {
		grammars = []Grammar{Checklist{}, Label{}}
	}
	return &Parser{grammars: grammars}
}

// Parse returns the entries of the first grammar with at least one match, and that
// grammar's name. No match is not an error: it yields nil and an empty name.
func (p *Parser) Parse(text string) ([]domain.TaskEntry, string) {
	if strings.TrimSpace(text) == "" {
		return nil, ""
	}
	for _, g := range p.grammars {
		if entries := g.Parse(text); len(entries) > 0 {
			return entries, g.Name()
		}
	}
	return nil, ""
}
