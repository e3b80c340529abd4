package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testIssue() *Issue {
	return &Issue{
		ID:          "issue-1",
		CircleCode:  "FAM-202",
		WeekNumber:  42,
		PublishDate: 1_700_000_000_000,
		Sections: []Section{
			{UserName: "Alex", Blocks: BlockList{
				&TextBlock{BlockMeta: BlockMeta{ID: "t"}, Content: "Hello from the garden."},
				&PuzzleBlock{BlockMeta: BlockMeta{ID: "p"}, Data: FallbackPuzzle()},
				&PuzzleBlock{BlockMeta: BlockMeta{ID: "q"}, Generating: true},
			}},
			{UserName: "Sarah", Blocks: BlockList{
				&ImageBlock{BlockMeta: BlockMeta{ID: "i"}, URL: "https://example.com/tomato.jpg", Caption: "Tomatoes"},
			}},
		},
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(testIssue())

	require.True(t, strings.HasPrefix(md, "# Sunday Paper\n"))
	require.Contains(t, md, "Issue #42 · FAM-202 · November 14, 2023")
	require.Contains(t, md, "## Alex\n")
	require.Contains(t, md, "## Sarah\n")
	require.Contains(t, md, "Hello from the garden.")
	require.Contains(t, md, "![Tomatoes](https://example.com/tomato.jpg)")
	require.Contains(t, md, "*Tomatoes*")
	require.Contains(t, md, "### Weekly Mini")
	require.Contains(t, md, "```\n_ _ _\n# # _\n# # _\n```")
	require.Contains(t, md, "**Across**\n\n- **1.** Common pet (3)")
	require.Contains(t, md, "**Down**\n\n- **1.** Hot drink (3)")
	require.Contains(t, md, "*Puzzle in the works…*")

	// Sections keep their order.
	require.Less(t, strings.Index(md, "## Alex"), strings.Index(md, "## Sarah"))
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(testIssue())
	require.NoError(t, err)

	require.Contains(t, html, "<h1>Sunday Paper</h1>")
	require.Contains(t, html, "<h2>Alex</h2>")
	require.Contains(t, html, "<h3>Weekly Mini</h3>")
	require.Contains(t, html, `<img src="https://example.com/tomato.jpg" alt="Tomatoes">`)
	require.Contains(t, html, "<em>Tomatoes</em>")
	require.Contains(t, html, "<pre><code>")
}

func TestRenderEmptyIssue(t *testing.T) {
	md := RenderMarkdown(&Issue{CircleCode: "SUN-101", WeekNumber: 42})
	require.Contains(t, md, "Issue #42 · SUN-101")
	require.NotContains(t, md, "##")
}
