package main

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

const maxImageSize = 10 << 20 // 10 MiB

// Shoebox collects a member's blocks during the week.
type Shoebox struct {
	store   *ContentStore
	puzzles *PuzzleService
	events  *Broadcaster
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]bool // draft keys with a puzzle being generated
	wg       sync.WaitGroup
}

// NewShoebox creates a shoebox service. events may be nil.
func NewShoebox(store *ContentStore, puzzles *PuzzleService, events *Broadcaster) *Shoebox {
	return &Shoebox{
		store:    store,
		puzzles:  puzzles,
		events:   events,
		now:      time.Now,
		inflight: make(map[string]bool),
	}
}

// AddText appends a text block to the user's draft.
func (s *Shoebox) AddText(ctx context.Context, u User, content string) (*TextBlock, error) {
	if strings.TrimSpace(content) == "" {
		return nil, NewInvalidRequest("content is required")
	}
	b := NewTextBlock(content, s.now())
	if err := s.appendBlock(ctx, u, b); err != nil {
		return nil, err
	}
	return b, nil
}

// AddImage appends an image block to the user's draft.
func (s *Shoebox) AddImage(ctx context.Context, u User, url, caption string) (*ImageBlock, error) {
	if err := validateImageURL(url); err != nil {
		return nil, err
	}
	b := NewImageBlock(url, strings.TrimSpace(caption), s.now())
	if err := s.appendBlock(ctx, u, b); err != nil {
		return nil, err
	}
	return b, nil
}

// RemoveBlock deletes a block from the user's draft.
func (s *Shoebox) RemoveBlock(ctx context.Context, u User, id string) error {
	_, err := s.store.UpdateDraft(ctx, u, func(blocks BlockList) (BlockList, error) {
		i := blocks.IndexOf(id)
		if i < 0 {
			return nil, NewNotFound("block", id)
		}
		return append(blocks[:i], blocks[i+1:]...), nil
	})
	return err
}

// ReplaceDraft overwrites the user's draft with blocks. Pending puzzles are
// owned by the generator: a block may be pending only if the stored draft
// has it pending under the same id, and a pending block cannot be completed
// from outside.
func (s *Shoebox) ReplaceDraft(ctx context.Context, u User, blocks BlockList) error {
	for _, b := range blocks {
		if img, ok := b.(*ImageBlock); ok {
			if err := validateImageURL(img.URL); err != nil {
				return err
			}
		}
	}
	_, err := s.store.UpdateDraft(ctx, u, func(stored BlockList) (BlockList, error) {
		for _, b := range blocks {
			pb, ok := b.(*PuzzleBlock)
			if !ok {
				continue
			}
			wasPending := false
			if i := stored.IndexOf(pb.ID); i >= 0 {
				if prev, ok := stored[i].(*PuzzleBlock); ok {
					wasPending = prev.Generating
				}
			}
			switch {
			case pb.Generating && !wasPending:
				return nil, NewInvalidRequest("puzzle " + pb.ID + " is not being generated")
			case !pb.Generating && wasPending:
				return nil, NewConflict("puzzle " + pb.ID + " is still being generated")
			case !pb.Generating && pb.Data == nil:
				return nil, NewInvalidRequest("puzzle " + pb.ID + " has no data")
			}
		}
		return blocks, nil
	})
	return err
}

func (s *Shoebox) appendBlock(ctx context.Context, u User, b Block) error {
	_, err := s.store.UpdateDraft(ctx, u, func(blocks BlockList) (BlockList, error) {
		return append(blocks, b), nil
	})
	return err
}

// StartPuzzle appends a pending puzzle block and generates its content in
// the background. The placeholder is replaced in place once the puzzle is
// ready. Only one puzzle per draft can be pending.
func (s *Shoebox) StartPuzzle(ctx context.Context, u User) (*PuzzleBlock, error) {
	placeholder, _, err := s.startPuzzle(ctx, u)
	return placeholder, err
}

// GeneratePuzzle is StartPuzzle followed by waiting for the result.
func (s *Shoebox) GeneratePuzzle(ctx context.Context, u User) (*PuzzleBlock, error) {
	_, done, err := s.startPuzzle(ctx, u)
	if err != nil {
		return nil, err
	}
	select {
	case b := <-done:
		if b == nil {
			return nil, NewConflict("puzzle was discarded before it completed")
		}
		return b, nil
	case <-ctx.Done():
		return nil, NewUnavailable("puzzle generation still running")
	}
}

// Wait blocks until every background generation has finished.
func (s *Shoebox) Wait() {
	s.wg.Wait()
}

func (s *Shoebox) startPuzzle(ctx context.Context, u User) (*PuzzleBlock, <-chan *PuzzleBlock, error) {
	key := draftKey(u)

	s.mu.Lock()
	if s.inflight[key] {
		s.mu.Unlock()
		return nil, nil, NewConflict("a puzzle is already being generated")
	}
	s.inflight[key] = true
	s.mu.Unlock()

	placeholder := NewPendingPuzzle(s.now())
	var notes string
	_, err := s.store.UpdateDraft(ctx, u, func(blocks BlockList) (BlockList, error) {
		notes = blocks.TextContext()
		return append(blocks, placeholder), nil
	})
	if err != nil {
		s.release(key)
		return nil, nil, err
	}

	done := make(chan *PuzzleBlock, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(key)
		done <- s.finishPuzzle(context.WithoutCancel(ctx), u, placeholder, notes)
	}()
	return placeholder, done, nil
}

// finishPuzzle generates the puzzle and swaps it in for the placeholder.
// It returns nil when the placeholder is no longer in the draft.
func (s *Shoebox) finishPuzzle(ctx context.Context, u User, placeholder *PuzzleBlock, notes string) *PuzzleBlock {
	data := s.puzzles.Generate(ctx, notes)

	var finished *PuzzleBlock
	_, err := s.store.UpdateDraft(ctx, u, func(blocks BlockList) (BlockList, error) {
		i := blocks.IndexOf(placeholder.ID)
		if i < 0 {
			return nil, NewNotFound("block", placeholder.ID)
		}
		pending, ok := blocks[i].(*PuzzleBlock)
		if !ok {
			return nil, NewConflict("block " + placeholder.ID + " is not a puzzle")
		}
		b, err := pending.Complete(data, s.now())
		if err != nil {
			return nil, NewConflict(err.Error())
		}
		blocks[i] = b
		finished = b
		return blocks, nil
	})
	if err != nil {
		log.Printf("Puzzle %s for %s dropped: %v", placeholder.ID, u.Name, err)
		return nil
	}

	if s.events != nil {
		s.events.Broadcast(puzzleReadyEvent(u, finished))
	}
	return finished
}

func (s *Shoebox) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

// validateImageURL accepts base64 image data URLs and http(s) links.
func validateImageURL(url string) error {
	switch {
	case strings.HasPrefix(url, "data:image/"):
		if !strings.Contains(url, ";base64,") {
			return NewInvalidRequest("image data URL must be base64 encoded")
		}
		if len(url) > maxImageSize {
			return NewTooLarge("image", maxImageSize, len(url))
		}
		return nil
	case strings.HasPrefix(url, "https://"), strings.HasPrefix(url, "http://"):
		return nil
	case url == "":
		return NewInvalidRequest("url is required")
	default:
		return NewInvalidRequest("url must be an image data URL or an http(s) link")
	}
}
