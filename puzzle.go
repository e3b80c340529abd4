package main

import (
	"context"
	"log"
	"strings"
	"time"
)

const (
	defaultPuzzleTimeout = 30 * time.Second
	defaultPuzzleContext = "Sunday Morning Coffee Relax"
)

// PuzzleGenerator produces a crossword from free text. Implementations
// talk to a non-deterministic remote model and may fail.
type PuzzleGenerator interface {
	GeneratePuzzle(ctx context.Context, contextText string) (*PuzzleData, error)
}

// PuzzleService always yields a puzzle: the generator's result, or the
// fallback when there is no generator, it fails, or it times out.
type PuzzleService struct {
	gen     PuzzleGenerator
	timeout time.Duration
}

// NewPuzzleService creates a service. gen may be nil.
func NewPuzzleService(gen PuzzleGenerator, timeout time.Duration) *PuzzleService {
	if timeout <= 0 {
		timeout = defaultPuzzleTimeout
	}
	return &PuzzleService{gen: gen, timeout: timeout}
}

// Timeout returns the bound applied to each generation.
func (s *PuzzleService) Timeout() time.Duration {
	return s.timeout
}

// Generate returns a puzzle for contextText. It never fails.
func (s *PuzzleService) Generate(ctx context.Context, contextText string) *PuzzleData {
	if strings.TrimSpace(contextText) == "" {
		contextText = defaultPuzzleContext
	}
	if s.gen == nil {
		log.Println("Puzzle generator not configured, serving fallback puzzle")
		return FallbackPuzzle()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		data *PuzzleData
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := s.gen.GeneratePuzzle(ctx, contextText)
		ch <- result{data, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			log.Printf("Puzzle generation error: %v", r.err)
			return FallbackPuzzle()
		}
		if r.data == nil {
			log.Println("Puzzle generation returned no data")
			return FallbackPuzzle()
		}
		return r.data
	case <-ctx.Done():
		log.Printf("Puzzle generation stopped after %s: %v", s.timeout, ctx.Err())
		return FallbackPuzzle()
	}
}
