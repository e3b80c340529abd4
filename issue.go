package main

import (
	"strings"
)

// weekNumberBase is the week number of a circle's first issue.
const weekNumberBase = 42

// User is a member of a circle.
type User struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	GroupCode string `json:"groupCode"`
}

// NewUser trims the fields, uppercases the group code and checks that
// nothing is empty.
func NewUser(name, email, groupCode string) (User, error) {
	u := User{
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		GroupCode: strings.ToUpper(strings.TrimSpace(groupCode)),
	}
	if u.Name == "" || u.Email == "" || u.GroupCode == "" {
		return User{}, NewInvalidRequest("name, email and groupCode are required")
	}
	if err := checkKeyParts(u); err != nil {
		return User{}, err
	}
	return u, nil
}

// checkKeyParts rejects names and codes that would make draft keys
// ambiguous.
func checkKeyParts(u User) error {
	if strings.Contains(u.Name, ":") || strings.Contains(u.GroupCode, ":") {
		return NewInvalidRequest("name and groupCode must not contain ':'")
	}
	return nil
}

// Section is the part of an issue contributed by one member.
type Section struct {
	UserName string    `json:"userName"`
	Blocks   BlockList `json:"blocks"`
}

// Issue is a published newsletter. It is never modified after creation.
type Issue struct {
	ID          string    `json:"id"`
	CircleCode  string    `json:"circleCode"`
	WeekNumber  int       `json:"weekNumber"`
	PublishDate int64     `json:"publishDate"` // ms since epoch
	Sections    []Section `json:"sections"`
}

// nextWeekNumber returns the week number following the existing issues.
func nextWeekNumber(existing []*Issue) int {
	return len(existing) + weekNumberBase
}
