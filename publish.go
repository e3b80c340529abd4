package main

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Publisher turns a member's draft into a circle issue.
type Publisher struct {
	store  *ContentStore
	circle CircleSource
	mailer Mailer
	events *Broadcaster
	now    func() time.Time
}

// NewPublisher wires a publisher. mailer and events may be nil.
func NewPublisher(store *ContentStore, circle CircleSource, mailer Mailer, events *Broadcaster) *Publisher {
	if mailer == nil {
		mailer = disabledMailer{}
	}
	return &Publisher{
		store:  store,
		circle: circle,
		mailer: mailer,
		events: events,
		now:    time.Now,
	}
}

// Publish consolidates blocks with the rest of the circle into a new issue,
// records it at the head of the circle's history and clears the user's
// draft. Calling it twice creates two issues with consecutive week numbers.
func (p *Publisher) Publish(ctx context.Context, u User, blocks BlockList) (*Issue, error) {
	return p.publish(ctx, u, func(BlockList) (BlockList, error) {
		return blocks, nil
	})
}

// PublishDraft publishes the user's stored draft.
// Drafts with a puzzle still being generated are refused.
func (p *Publisher) PublishDraft(ctx context.Context, u User) (*Issue, error) {
	return p.publish(ctx, u, func(draft BlockList) (BlockList, error) {
		if draft.HasPendingPuzzle() {
			return nil, NewConflict("a puzzle is still being generated")
		}
		return draft, nil
	})
}

// publish runs under the store lock. pick chooses the user's blocks given
// the draft as it is at that moment.
func (p *Publisher) publish(ctx context.Context, u User, pick func(draft BlockList) (BlockList, error)) (*Issue, error) {
	issue, err := p.store.PublishIssue(ctx, u, func(existing []*Issue, draft BlockList) (*Issue, error) {
		blocks, err := pick(draft)
		if err != nil {
			return nil, err
		}
		if blocks == nil {
			blocks = BlockList{}
		}
		week := nextWeekNumber(existing)

		others, err := p.circle.CircleSubmissions(ctx, u.GroupCode, week)
		if err != nil {
			return nil, NewInternal(fmt.Errorf("circle submissions: %w", err))
		}

		now := p.now()
		sections := make([]Section, 0, len(others)+1)
		sections = append(sections, Section{UserName: u.Name, Blocks: blocks})
		sections = append(sections, others...)

		return &Issue{
			ID:          newID("issue", now),
			CircleCode:  u.GroupCode,
			WeekNumber:  week,
			PublishDate: now.UnixMilli(),
			Sections:    sections,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Issue #%d published for circle %s by %s", issue.WeekNumber, issue.CircleCode, u.Name)
	p.announce(issue)
	p.sendCopy(ctx, u, issue)
	return issue, nil
}

func (p *Publisher) announce(issue *Issue) {
	if p.events != nil {
		p.events.Broadcast(issuePublishedEvent(issue))
	}
}

// sendCopy mails the issue to its publisher. Failures are only logged.
func (p *Publisher) sendCopy(ctx context.Context, u User, issue *Issue) {
	if err := SendIssue(ctx, p.mailer, u.Email, issue); err != nil {
		log.Printf("Issue #%d: copy to %s not sent: %v", issue.WeekNumber, u.Email, err)
	}
}
