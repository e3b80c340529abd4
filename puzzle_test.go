package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubGenerator returns a fixed result and records the context it was given.
type stubGenerator struct {
	mu      sync.Mutex
	data    *PuzzleData
	err     error
	block   chan struct{} // when set, wait for close or ctx
	prompts []string
}

func (g *stubGenerator) GeneratePuzzle(ctx context.Context, contextText string) (*PuzzleData, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, contextText)
	g.mu.Unlock()

	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.data, g.err
}

func (g *stubGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func testPuzzle() *PuzzleData {
	clues := []CrosswordClue{
		{Number: 1, Direction: Across, Text: "Grows in the garden", Answer: "TOMATO", Row: 0, Col: 0},
	}
	return &PuzzleData{Title: "Garden Week", Grid: BuildGrid(1, 6, clues), Clues: clues}
}

func TestPuzzleServiceSuccess(t *testing.T) {
	gen := &stubGenerator{data: testPuzzle()}
	svc := NewPuzzleService(gen, time.Second)

	p := svc.Generate(context.Background(), "gardening and tomatoes")
	require.Equal(t, "Garden Week", p.Title)
	require.Equal(t, "gardening and tomatoes", gen.lastPrompt())
}

func TestPuzzleServiceDefaultContext(t *testing.T) {
	gen := &stubGenerator{data: testPuzzle()}
	svc := NewPuzzleService(gen, time.Second)

	svc.Generate(context.Background(), "   ")
	require.Equal(t, defaultPuzzleContext, gen.lastPrompt())
}

func TestPuzzleServiceFallback(t *testing.T) {
	tests := []struct {
		name string
		gen  PuzzleGenerator
	}{
		{"no generator", nil},
		{"generator error", &stubGenerator{err: errors.New("quota exceeded")}},
		{"nil data", &stubGenerator{}},
		{"timeout", &stubGenerator{data: testPuzzle(), block: make(chan struct{})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewPuzzleService(tt.gen, 20*time.Millisecond)

			start := time.Now()
			p := svc.Generate(context.Background(), "some notes")
			require.Equal(t, FallbackPuzzle(), p)
			require.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestPuzzleServiceDefaultTimeout(t *testing.T) {
	require.Equal(t, defaultPuzzleTimeout, NewPuzzleService(nil, 0).Timeout())
	require.Equal(t, time.Second, NewPuzzleService(nil, time.Second).Timeout())
}
