package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// CircleSource supplies the sections contributed by the other members of
// a circle for a given week.
type CircleSource interface {
	CircleSubmissions(ctx context.Context, circleCode string, week int) ([]Section, error)
}

type simulatedFriend struct {
	name    string
	content string
	image   string
}

var simulatedFriends = []simulatedFriend{
	{
		name:    "Sarah",
		content: "Spent the whole weekend gardening. The tomatoes are finally coming in!",
		image:   "https://images.unsplash.com/photo-1591857177580-dc82b9ac4e10?w=800&q=80",
	},
	{
		name:    "Mike",
		content: "Finally finished the woodshop project. It's not perfect, but it's mine.",
		image:   "https://images.unsplash.com/photo-1603350286221-ca467e411f19?w=800&q=80",
	},
	{
		name:    "Jules",
		content: "Reading 'The Creative Act' by Rick Rubin. Highly recommend for everyone in this circle.",
	},
}

// SimulatedCircle returns the same three canned members for every circle.
// It stands in until members' drafts are synced for real.
type SimulatedCircle struct {
	now func() time.Time
}

// NewSimulatedCircle creates the canned circle source.
func NewSimulatedCircle() *SimulatedCircle {
	return &SimulatedCircle{now: time.Now}
}

func (s *SimulatedCircle) CircleSubmissions(_ context.Context, _ string, _ int) ([]Section, error) {
	ts := s.now().UnixMilli()

	sections := make([]Section, 0, len(simulatedFriends))
	for i, f := range simulatedFriends {
		blocks := BlockList{&TextBlock{
			BlockMeta: BlockMeta{ID: fmt.Sprintf("sim-%d-text", i), Timestamp: ts},
			Content:   f.content,
		}}
		if f.image != "" {
			blocks = append(blocks, &ImageBlock{
				BlockMeta: BlockMeta{ID: fmt.Sprintf("sim-%d-img", i), Timestamp: ts},
				URL:       f.image,
				Caption:   "Captured this week",
			})
		}
		sections = append(sections, Section{UserName: f.name, Blocks: blocks})
	}
	return sections, nil
}

var circleCodePrefixes = []string{"SUN", "WKLY", "FAM", "CRE", "ART"}

// GenerateCircleCode returns a random code such as "FAM-202".
func GenerateCircleCode() string {
	p := circleCodePrefixes[rand.IntN(len(circleCodePrefixes))]
	return fmt.Sprintf("%s-%d", p, rand.IntN(900)+100)
}
