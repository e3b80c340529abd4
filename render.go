package main

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
)

// RenderMarkdown writes the web version of an issue as Markdown.
func RenderMarkdown(issue *Issue) string {
	var b strings.Builder

	date := time.UnixMilli(issue.PublishDate).UTC().Format("January 2, 2006")
	fmt.Fprintf(&b, "# Sunday Paper\n\nIssue #%d · %s · %s\n", issue.WeekNumber, issue.CircleCode, date)

	for _, s := range issue.Sections {
		fmt.Fprintf(&b, "\n## %s\n", s.UserName)
		for _, block := range s.Blocks {
			b.WriteString("\n")
			writeBlockMarkdown(&b, block)
		}
	}
	return b.String()
}

func writeBlockMarkdown(b *strings.Builder, block Block) {
	switch v := block.(type) {
	case *TextBlock:
		b.WriteString(v.Content)
		b.WriteString("\n")
	case *ImageBlock:
		fmt.Fprintf(b, "![%s](%s)\n", v.Caption, v.URL)
		if v.Caption != "" {
			fmt.Fprintf(b, "\n*%s*\n", v.Caption)
		}
	case *PuzzleBlock:
		if v.Data == nil {
			b.WriteString("*Puzzle in the works…*\n")
			return
		}
		writePuzzleMarkdown(b, v.Data)
	}
}

var directionLabels = map[Direction]string{Across: "Across", Down: "Down"}

func writePuzzleMarkdown(b *strings.Builder, p *PuzzleData) {
	fmt.Fprintf(b, "### %s\n\n```\n", p.Title)
	for _, row := range p.Grid {
		cells := make([]string, len(row))
		for i, cell := range row {
			if cell.Black() {
				cells[i] = "#"
			} else {
				cells[i] = "_"
			}
		}
		b.WriteString(strings.Join(cells, " "))
		b.WriteString("\n")
	}
	b.WriteString("```\n")

	for _, dir := range []Direction{Across, Down} {
		var lines []string
		for _, c := range p.Clues {
			if c.Direction == dir {
				lines = append(lines, fmt.Sprintf("- **%d.** %s (%d)", c.Number, c.Text, len([]rune(c.Answer))))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(b, "\n**%s**\n\n%s\n", directionLabels[dir], strings.Join(lines, "\n"))
	}
}

// RenderHTML converts the Markdown rendition of an issue to HTML.
func RenderHTML(issue *Issue) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(RenderMarkdown(issue)), &buf); err != nil {
		return "", fmt.Errorf("render issue %s: %w", issue.ID, err)
	}
	return buf.String(), nil
}
