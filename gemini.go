package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	// maxGridSize bounds the dimensions accepted from the model.
	maxGridSize = 15

	// maxContextRunes bounds the notes embedded in the prompt.
	maxContextRunes = 4000
)

const puzzlePrompt = `Create a mini crossword puzzle (maximum 5x5 grid) based strictly on the following text context from a personal newsletter.
The words in the puzzle should be keywords or themes found in the text.
Keep it simple and fun.

Context: %q`

const puzzleSystemInstruction = "You are a puzzle master creating personalized crosswords for a newsletter."

// puzzleSchema constrains the model output to the clue list BuildGrid consumes.
var puzzleSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title": {Type: genai.TypeString, Description: "A witty title for the crossword"},
		"rows":  {Type: genai.TypeInteger, Description: "Number of rows (max 5)"},
		"cols":  {Type: genai.TypeInteger, Description: "Number of columns (max 5)"},
		"clues": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"number":    {Type: genai.TypeInteger},
					"direction": {Type: genai.TypeString, Enum: []string{string(Across), string(Down)}},
					"text":      {Type: genai.TypeString, Description: "The clue text"},
					"answer":    {Type: genai.TypeString, Description: "The answer word"},
					"row":       {Type: genai.TypeInteger, Description: "0-indexed start row"},
					"col":       {Type: genai.TypeInteger, Description: "0-indexed start col"},
				},
				Required: []string{"number", "direction", "text", "answer", "row", "col"},
			},
		},
	},
	Required: []string{"title", "rows", "cols", "clues"},
}

// puzzleResponse is the JSON document returned by the model.
type puzzleResponse struct {
	Title string          `json:"title"`
	Rows  int             `json:"rows"`
	Cols  int             `json:"cols"`
	Clues []CrosswordClue `json:"clues"`
}

// GeneratePuzzle asks Gemini for a mini crossword built from contextText.
func (g *GeminiClient) GeneratePuzzle(ctx context.Context, contextText string) (*PuzzleData, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.modelName,
		genai.Text(fmt.Sprintf(puzzlePrompt, truncateRunes(contextText, maxContextRunes))),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(puzzleSystemInstruction, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			ResponseSchema:    puzzleSchema,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty gemini response")
	}
	return parsePuzzleResponse(text)
}

// parsePuzzleResponse validates the model's JSON and lays out its grid.
func parsePuzzleResponse(text string) (*PuzzleData, error) {
	var raw puzzleResponse
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse puzzle JSON: %w\nraw response: %s", err, text)
	}
	if err := validateClues(raw.Rows, raw.Cols, raw.Clues); err != nil {
		return nil, fmt.Errorf("invalid puzzle: %w", err)
	}

	return &PuzzleData{
		Title: raw.Title,
		Grid:  BuildGrid(raw.Rows, raw.Cols, raw.Clues),
		Clues: raw.Clues,
	}, nil
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
