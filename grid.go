package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// defaultGridSize is used when a puzzle response omits its dimensions.
const defaultGridSize = 5

// Direction is the orientation of a clue's answer.
type Direction string

const (
	Across Direction = "across"
	Down   Direction = "down"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == Across || d == Down
}

// CrosswordClue is a single clue together with its answer and start cell.
type CrosswordClue struct {
	Number    int       `json:"number"`
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
	Answer    string    `json:"answer"`
	Row       int       `json:"row"`
	Col       int       `json:"col"`
}

// CrosswordCell is one square of a puzzle grid.
// An empty Letter is a black square.
type CrosswordCell struct {
	Letter    string
	Number    int
	UserInput string
}

// Black reports whether the cell is a black square.
func (c CrosswordCell) Black() bool {
	return c.Letter == ""
}

// cellJSON is the wire shape of a cell: black squares carry "letter": null.
type cellJSON struct {
	Letter    *string `json:"letter"`
	Number    int     `json:"number,omitempty"`
	UserInput string  `json:"userInput,omitempty"`
}

func (c CrosswordCell) MarshalJSON() ([]byte, error) {
	out := cellJSON{Number: c.Number, UserInput: c.UserInput}
	if c.Letter != "" {
		letter := c.Letter
		out.Letter = &letter
	}
	return json.Marshal(out)
}

func (c *CrosswordCell) UnmarshalJSON(data []byte) error {
	var in cellJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = CrosswordCell{Number: in.Number, UserInput: in.UserInput}
	if in.Letter != nil {
		c.Letter = *in.Letter
	}
	return nil
}

// PuzzleData is a finished mini crossword.
type PuzzleData struct {
	Title string            `json:"title"`
	Grid  [][]CrosswordCell `json:"grid"`
	Clues []CrosswordClue   `json:"clues"`
}

// Rows returns the number of grid rows.
func (p *PuzzleData) Rows() int {
	return len(p.Grid)
}

// Cols returns the number of grid columns.
func (p *PuzzleData) Cols() int {
	if len(p.Grid) == 0 {
		return 0
	}
	return len(p.Grid[0])
}

// BuildGrid lays the clue answers out on a rows x cols grid.
//
// Every cell starts black. Answers are written in clue order along their
// direction; characters falling outside the grid are dropped, so a clue
// that does not fit contributes a truncated word instead of an error.
// When several clues start on the same cell the smallest clue number is
// kept, which makes the numbering independent of clue order.
func BuildGrid(rows, cols int, clues []CrosswordClue) [][]CrosswordCell {
	if rows <= 0 {
		rows = defaultGridSize
	}
	if cols <= 0 {
		cols = defaultGridSize
	}

	grid := make([][]CrosswordCell, rows)
	for r := range grid {
		grid[r] = make([]CrosswordCell, cols)
	}

	for _, clue := range clues {
		for i, ch := range []rune(strings.ToUpper(clue.Answer)) {
			r, c := clue.Row, clue.Col
			if clue.Direction == Across {
				c += i
			} else {
				r += i
			}
			if r < 0 || r >= rows || c < 0 || c >= cols {
				continue
			}

			cell := &grid[r][c]
			cell.Letter = string(ch)
			if i == 0 && clue.Number > 0 && (cell.Number == 0 || clue.Number < cell.Number) {
				cell.Number = clue.Number
			}
		}
	}
	return grid
}

// FallbackPuzzle returns the static puzzle served when generation fails.
func FallbackPuzzle() *PuzzleData {
	return &PuzzleData{
		Title: "Weekly Mini",
		Grid: [][]CrosswordCell{
			{{Letter: "C", Number: 1}, {Letter: "A"}, {Letter: "T"}},
			{{}, {}, {Letter: "E"}},
			{{}, {}, {Letter: "A"}},
		},
		Clues: []CrosswordClue{
			{Number: 1, Direction: Across, Text: "Common pet", Answer: "CAT", Row: 0, Col: 0},
			{Number: 1, Direction: Down, Text: "Hot drink", Answer: "TEA", Row: 0, Col: 2},
		},
	}
}

// validateClues checks a generated clue list before it is laid out.
func validateClues(rows, cols int, clues []CrosswordClue) error {
	if rows > maxGridSize || cols > maxGridSize {
		return fmt.Errorf("grid %dx%d exceeds %dx%d", rows, cols, maxGridSize, maxGridSize)
	}
	if len(clues) == 0 {
		return fmt.Errorf("no clues")
	}
	for _, c := range clues {
		if !c.Direction.Valid() {
			return fmt.Errorf("clue %d: unknown direction %q", c.Number, c.Direction)
		}
		if strings.TrimSpace(c.Answer) == "" {
			return fmt.Errorf("clue %d: empty answer", c.Number)
		}
	}
	return nil
}
