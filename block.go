package main

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// BlockType discriminates the block variants on the wire.
type BlockType string

const (
	BlockText   BlockType = "TEXT"
	BlockImage  BlockType = "IMAGE"
	BlockPuzzle BlockType = "PUZZLE"
)

// Block is one item of a shoebox. The variants are TextBlock, ImageBlock
// and PuzzleBlock; the set is closed.
type Block interface {
	BlockID() string
	Type() BlockType
	isBlock()
}

// BlockMeta holds the fields shared by every block.
type BlockMeta struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
}

func (m BlockMeta) BlockID() string { return m.ID }

func newBlockMeta(prefix string, now time.Time) BlockMeta {
	return BlockMeta{ID: newID(prefix, now), Timestamp: now.UnixMilli()}
}

// TextBlock is a free text note.
type TextBlock struct {
	BlockMeta
	Content string `json:"content"`
}

func (*TextBlock) Type() BlockType { return BlockText }
func (*TextBlock) isBlock()        {}

func (b *TextBlock) MarshalJSON() ([]byte, error) {
	type plain TextBlock
	return json.Marshal(struct {
		Type BlockType `json:"type"`
		*plain
	}{BlockText, (*plain)(b)})
}

// ImageBlock is a picture, usually embedded as a data URL.
type ImageBlock struct {
	BlockMeta
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

func (*ImageBlock) Type() BlockType { return BlockImage }
func (*ImageBlock) isBlock()        {}

func (b *ImageBlock) MarshalJSON() ([]byte, error) {
	type plain ImageBlock
	return json.Marshal(struct {
		Type BlockType `json:"type"`
		*plain
	}{BlockImage, (*plain)(b)})
}

// PuzzleBlock holds a crossword. Data is nil while Generating is true.
type PuzzleBlock struct {
	BlockMeta
	Data       *PuzzleData `json:"data"`
	Generating bool        `json:"isGenerating"`
}

func (*PuzzleBlock) Type() BlockType { return BlockPuzzle }
func (*PuzzleBlock) isBlock()        {}

func (b *PuzzleBlock) MarshalJSON() ([]byte, error) {
	type plain PuzzleBlock
	return json.Marshal(struct {
		Type BlockType `json:"type"`
		*plain
	}{BlockPuzzle, (*plain)(b)})
}

// Complete returns the finished version of a pending puzzle block.
// A block completes exactly once.
func (b *PuzzleBlock) Complete(data *PuzzleData, now time.Time) (*PuzzleBlock, error) {
	if !b.Generating {
		return nil, fmt.Errorf("puzzle block %s already completed", b.ID)
	}
	if data == nil {
		return nil, fmt.Errorf("puzzle block %s: nil puzzle data", b.ID)
	}
	return &PuzzleBlock{
		BlockMeta:  BlockMeta{ID: b.ID, Timestamp: now.UnixMilli()},
		Data:       data,
		Generating: false,
	}, nil
}

// NewTextBlock creates a text block stamped with now.
func NewTextBlock(content string, now time.Time) *TextBlock {
	return &TextBlock{BlockMeta: newBlockMeta("block", now), Content: content}
}

// NewImageBlock creates an image block stamped with now.
func NewImageBlock(url, caption string, now time.Time) *ImageBlock {
	return &ImageBlock{BlockMeta: newBlockMeta("block", now), URL: url, Caption: caption}
}

// NewPendingPuzzle creates the placeholder inserted while a puzzle is generated.
func NewPendingPuzzle(now time.Time) *PuzzleBlock {
	return &PuzzleBlock{BlockMeta: newBlockMeta("puzzle", now), Generating: true}
}

// DecodeBlock decodes a single block, dispatching on its "type" field.
func DecodeBlock(data []byte) (Block, error) {
	var head struct {
		Type BlockType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var b Block
	switch head.Type {
	case BlockText:
		b = &TextBlock{}
	case BlockImage:
		b = &ImageBlock{}
	case BlockPuzzle:
		b = &PuzzleBlock{}
	default:
		return nil, fmt.Errorf("unknown block type %q", head.Type)
	}
	if err := json.Unmarshal(data, b); err != nil {
		return nil, err
	}
	return b, nil
}

// BlockList is an ordered list of blocks that decodes its variants.
type BlockList []Block

func (l *BlockList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(BlockList, 0, len(raws))
	for i, raw := range raws {
		b, err := DecodeBlock(raw)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		out = append(out, b)
	}
	*l = out
	return nil
}

// IndexOf returns the position of the block with the given id, or -1.
func (l BlockList) IndexOf(id string) int {
	for i, b := range l {
		if b.BlockID() == id {
			return i
		}
	}
	return -1
}

// TextContext joins the content of every text block with spaces.
func (l BlockList) TextContext() string {
	var parts []string
	for _, b := range l {
		if t, ok := b.(*TextBlock); ok {
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, " ")
}

// HasPendingPuzzle reports whether a puzzle is still being generated.
func (l BlockList) HasPendingPuzzle() bool {
	for _, b := range l {
		if p, ok := b.(*PuzzleBlock); ok && p.Generating {
			return true
		}
	}
	return false
}

// newID returns a prefixed ULID.
func newID(prefix string, now time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return prefix + "-" + ulid.MustNew(ulid.Timestamp(now), entropy).String()
}
