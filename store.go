package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// ContentStore persists drafts, issues and sessions as JSON in a KV store.
//
// Key layout:
//
//	draft:{userName}:{groupCode}  -> Block[]
//	issues:{groupCode}            -> Issue[] (newest first)
//	session:{id}                  -> User
type ContentStore struct {
	kv KV
	mu sync.Mutex // serializes read-modify-write sequences
}

// NewContentStore creates a store on top of kv.
func NewContentStore(kv KV) *ContentStore {
	return &ContentStore{kv: kv}
}

func draftKey(u User) string             { return "draft:" + u.Name + ":" + u.GroupCode }
func issuesKey(circleCode string) string { return "issues:" + circleCode }
func sessionKey(id string) string        { return "session:" + id }

// --- Drafts ---

// SaveDraft overwrites the user's draft.
func (s *ContentStore) SaveDraft(ctx context.Context, u User, blocks BlockList) error {
	data, err := encodeBlocks(blocks)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, draftKey(u), data); err != nil {
		return NewInternal(err)
	}
	return nil
}

// GetDraft returns the user's draft, or an empty list if there is none.
func (s *ContentStore) GetDraft(ctx context.Context, u User) (BlockList, error) {
	data, ok, err := s.kv.Get(ctx, draftKey(u))
	if err != nil {
		return nil, NewInternal(err)
	}
	if !ok {
		return BlockList{}, nil
	}
	var blocks BlockList
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, NewInternal(fmt.Errorf("decode draft %s: %w", draftKey(u), err))
	}
	if blocks == nil {
		blocks = BlockList{}
	}
	return blocks, nil
}

// ClearDraft removes the user's draft.
func (s *ContentStore) ClearDraft(ctx context.Context, u User) error {
	if err := s.kv.Remove(ctx, draftKey(u)); err != nil {
		return NewInternal(err)
	}
	return nil
}

// UpdateDraft applies fn to the current draft and saves the result.
// Concurrent updates through the same store are serialized.
func (s *ContentStore) UpdateDraft(ctx context.Context, u User, fn func(BlockList) (BlockList, error)) (BlockList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks, err := s.GetDraft(ctx, u)
	if err != nil {
		return nil, err
	}
	blocks, err = fn(blocks)
	if err != nil {
		return nil, err
	}
	if err := s.SaveDraft(ctx, u, blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// --- Issues ---

// ListIssues returns the circle's issues, newest first.
func (s *ContentStore) ListIssues(ctx context.Context, circleCode string) ([]*Issue, error) {
	data, ok, err := s.kv.Get(ctx, issuesKey(circleCode))
	if err != nil {
		return nil, NewInternal(err)
	}
	if !ok {
		return []*Issue{}, nil
	}
	var issues []*Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, NewInternal(fmt.Errorf("decode issues %s: %w", issuesKey(circleCode), err))
	}
	if issues == nil {
		issues = []*Issue{}
	}
	return issues, nil
}

// GetIssue returns one issue of a circle.
func (s *ContentStore) GetIssue(ctx context.Context, circleCode, id string) (*Issue, error) {
	issues, err := s.ListIssues(ctx, circleCode)
	if err != nil {
		return nil, err
	}
	for _, is := range issues {
		if is.ID == id {
			return is, nil
		}
	}
	return nil, NewNotFound("issue", id)
}

// AppendIssue prepends issue to the circle's history.
func (s *ContentStore) AppendIssue(ctx context.Context, circleCode string, issue *Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.ListIssues(ctx, circleCode)
	if err != nil {
		return err
	}
	op, err := prependIssueOp(circleCode, issue, existing)
	if err != nil {
		return err
	}
	if err := s.kv.Apply(ctx, []Op{op}); err != nil {
		return NewInternal(err)
	}
	return nil
}

// PublishIssue builds an issue from the circle's current history and the
// user's draft, then records it and clears the draft in a single batch.
// The draft is read under the store lock, so no update made before build
// runs is lost.
func (s *ContentStore) PublishIssue(ctx context.Context, u User, build func(existing []*Issue, draft BlockList) (*Issue, error)) (*Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.ListIssues(ctx, u.GroupCode)
	if err != nil {
		return nil, err
	}
	draft, err := s.GetDraft(ctx, u)
	if err != nil {
		return nil, err
	}
	issue, err := build(existing, draft)
	if err != nil {
		return nil, err
	}
	op, err := prependIssueOp(u.GroupCode, issue, existing)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Apply(ctx, []Op{op, RemoveOp(draftKey(u))}); err != nil {
		return nil, NewInternal(err)
	}
	return issue, nil
}

func prependIssueOp(circleCode string, issue *Issue, existing []*Issue) (Op, error) {
	list := make([]*Issue, 0, len(existing)+1)
	list = append(list, issue)
	list = append(list, existing...)
	data, err := json.Marshal(list)
	if err != nil {
		return Op{}, NewInternal(fmt.Errorf("encode issues: %w", err))
	}
	return SetOp(issuesKey(circleCode), data), nil
}

// --- Sessions ---

// SaveSession stores the user behind a session id.
func (s *ContentStore) SaveSession(ctx context.Context, id string, u User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return NewInternal(err)
	}
	if err := s.kv.Set(ctx, sessionKey(id), data); err != nil {
		return NewInternal(err)
	}
	return nil
}

// GetSession returns the user of a session. Unreadable session data is
// logged and reported as no session.
func (s *ContentStore) GetSession(ctx context.Context, id string) (User, bool, error) {
	data, ok, err := s.kv.Get(ctx, sessionKey(id))
	if err != nil {
		return User{}, false, NewInternal(err)
	}
	if !ok {
		return User{}, false, nil
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		log.Printf("session %s: unreadable user data, ignoring: %v", id, err)
		return User{}, false, nil
	}
	return u, true, nil
}

// RemoveSession deletes a session.
func (s *ContentStore) RemoveSession(ctx context.Context, id string) error {
	if err := s.kv.Remove(ctx, sessionKey(id)); err != nil {
		return NewInternal(err)
	}
	return nil
}

func encodeBlocks(blocks BlockList) ([]byte, error) {
	if blocks == nil {
		blocks = BlockList{}
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return nil, NewInternal(fmt.Errorf("encode blocks: %w", err))
	}
	return data, nil
}
