package models

import (
	"slices"
	"strings"
	"time"
)

// Role is a named capability holder assigned to a user
type Role string

const (
	RoleVisitor  Role = "visitor"
	RoleAuthor   Role = "author"
	RolePCChair  Role = "pc chair"
	RolePCMember Role = "pc member"
)

// ParseRole normalises a role name. Only roles that can be chosen at signup
// are accepted; visitor identities are minted by the server.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAuthor:
		return RoleAuthor, true
	case RolePCChair:
		return RolePCChair, true
	case RolePCMember:
		return RolePCMember, true
	}
	return "", false
}

// User represents a registered user
type User struct {
	ID           string     `json:"id" bson:"_id"`
	Username     string     `json:"username" bson:"username"`
	PasswordHash string     `json:"-" bson:"password_hash"`
	FirstName    string     `json:"first_name" bson:"first_name"`
	LastName     string     `json:"last_name" bson:"last_name"`
	Roles        []Role     `json:"roles" bson:"roles"`
	LoggedOutAt  *time.Time `json:"-" bson:"logged_out_at,omitempty"`
	// TokenGeneration is bumped on logout; tokens carrying an older
	// generation are revoked.
	TokenGeneration int64     `json:"-" bson:"token_generation"`
	Version         int64     `json:"-" bson:"version"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" bson:"updated_at"`
}

// DisplayName returns "first last", falling back to the username
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// HasRole reports whether the user holds the given role
func (u *User) HasRole(r Role) bool {
	return slices.Contains(u.Roles, r)
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	if u.LoggedOutAt != nil {
		t := *u.LoggedOutAt
		c.LoggedOutAt = &t
	}
	return &c
}

// Review is a committee member's assessment of a paper
type Review struct {
	ID            string    `json:"id" bson:"_id"`
	PaperID       string    `json:"paper_id" bson:"paper_id"`
	ReviewerID    string    `json:"reviewer_id" bson:"reviewer_id"`
	Score         int       `json:"score" bson:"score"`
	Justification string    `json:"justification" bson:"justification"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}

// Review score bounds
const (
	MinScore = 0
	MaxScore = 10
)

// ReviewView is a review with the reviewer resolved to a display name
type ReviewView struct {
	ID            string    `json:"id"`
	PaperID       string    `json:"paper_id"`
	Reviewer      string    `json:"reviewer"`
	Score         int       `json:"score"`
	Justification string    `json:"justification"`
	CreatedAt     time.Time `json:"created_at"`
}
