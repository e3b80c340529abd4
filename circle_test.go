package main

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimulatedCircle(t *testing.T) {
	sections, err := NewSimulatedCircle().CircleSubmissions(context.Background(), "FAM-202", 42)
	require.NoError(t, err)
	require.Len(t, sections, 3)

	require.Equal(t, "Sarah", sections[0].UserName)
	require.Equal(t, "Mike", sections[1].UserName)
	require.Equal(t, "Jules", sections[2].UserName)

	for _, s := range sections[:2] {
		require.Len(t, s.Blocks, 2)
		require.Equal(t, BlockText, s.Blocks[0].Type())
		img, ok := s.Blocks[1].(*ImageBlock)
		require.True(t, ok)
		require.Equal(t, "Captured this week", img.Caption)
	}
	require.Len(t, sections[2].Blocks, 1)
	require.Contains(t, sections[2].Blocks[0].(*TextBlock).Content, "The Creative Act")
}

func TestGenerateCircleCode(t *testing.T) {
	re := regexp.MustCompile(`^(SUN|WKLY|FAM|CRE|ART)-[1-9][0-9]{2}$`)
	for range 200 {
		code := GenerateCircleCode()
		require.Regexp(t, re, code)
	}
}

func TestNewUser(t *testing.T) {
	u, err := NewUser(" Alex ", " alex@example.com ", " fam-202 ")
	require.NoError(t, err)
	require.Equal(t, User{Name: "Alex", Email: "alex@example.com", GroupCode: "FAM-202"}, u)

	_, err = NewUser("Alex", "", "FAM-202")
	require.True(t, IsCode(err, ErrInvalidRequest))

	// "a:B"/"C" and "a"/"B:C" would share a draft key.
	_, err = NewUser("a:B", "a@example.com", "C")
	require.True(t, IsCode(err, ErrInvalidRequest))
	_, err = NewUser("a", "a@example.com", "B:C")
	require.True(t, IsCode(err, ErrInvalidRequest))
}

func TestNextWeekNumber(t *testing.T) {
	require.Equal(t, 42, nextWeekNumber(nil))
	require.Equal(t, 44, nextWeekNumber([]*Issue{{}, {}}))
}
