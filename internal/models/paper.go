package models

import (
	"slices"
	"time"
)

// PaperState is a phase of the paper lifecycle
type PaperState string

const (
	PaperCreated     PaperState = "CREATED"
	PaperSubmitted   PaperState = "SUBMITTED"
	PaperReviewed    PaperState = "REVIEWED"
	PaperRejected    PaperState = "REJECTED"
	PaperApproved    PaperState = "APPROVED"
	PaperAccepted    PaperState = "ACCEPTED"
	PaperFinalSubmit PaperState = "FINAL_SUBMIT"
)

// MaxReviewers is the reviewer cap per paper
const MaxReviewers = 2

// Paper represents a paper and its authorship
type Paper struct {
	ID               string     `json:"id" bson:"_id"`
	Title            string     `json:"title" bson:"title"`
	Abstract         string     `json:"abstract" bson:"abstract"`
	Content          string     `json:"content" bson:"content"`
	ConferenceID     string     `json:"conference_id,omitempty" bson:"conference_id,omitempty"`
	Authors          []string   `json:"authors" bson:"authors"`
	Coauthors        []string   `json:"coauthors" bson:"coauthors"`
	Reviewers        []string   `json:"reviewers" bson:"reviewers"`
	State            PaperState `json:"state" bson:"state"`
	FinalContent     string     `json:"final_content,omitempty" bson:"final_content,omitempty"`
	FinalSubmittedAt *time.Time `json:"final_submitted_at,omitempty" bson:"final_submitted_at,omitempty"`
	Version          int64      `json:"version" bson:"version"`
	CreatedAt        time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" bson:"updated_at"`
}

// IsAuthor reports whether userID is listed as an author
func (p *Paper) IsAuthor(userID string) bool {
	return slices.Contains(p.Authors, userID)
}

// IsCoauthor reports whether userID is listed as a coauthor
func (p *Paper) IsCoauthor(userID string) bool {
	return slices.Contains(p.Coauthors, userID)
}

// IsParticipant reports whether userID is an author or a coauthor
func (p *Paper) IsParticipant(userID string) bool {
	return p.IsAuthor(userID) || p.IsCoauthor(userID)
}

// HasReviewer reports whether userID is assigned as reviewer
func (p *Paper) HasReviewer(userID string) bool {
	return slices.Contains(p.Reviewers, userID)
}

// Locked reports whether the paper is under review and cannot be edited.
// Content is mandatory in exactly these states.
func (p *Paper) Locked() bool {
	return p.State == PaperSubmitted || p.State == PaperReviewed
}

// Clone returns a deep copy of the paper
func (p *Paper) Clone() *Paper {
	c := *p
	c.Authors = slices.Clone(p.Authors)
	c.Coauthors = slices.Clone(p.Coauthors)
	c.Reviewers = slices.Clone(p.Reviewers)
	if p.FinalSubmittedAt != nil {
		t := *p.FinalSubmittedAt
		c.FinalSubmittedAt = &t
	}
	return &c
}

// PaperSummary is the public projection of an accepted paper
type PaperSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Abstract  string    `json:"abstract"`
	Authors   []string  `json:"authors"`
	Coauthors []string  `json:"coauthors"`
	CreatedAt time.Time `json:"created_at"`
}

// CommitteePaper is the committee projection of an accepted paper
type CommitteePaper struct {
	PaperSummary
	Content      string `json:"content"`
	ConferenceID string `json:"conference_id,omitempty"`
}

// Summary returns the public projection of the paper
func (p *Paper) Summary() PaperSummary {
	return PaperSummary{
		ID:        p.ID,
		Title:     p.Title,
		Abstract:  p.Abstract,
		Authors:   slices.Clone(p.Authors),
		Coauthors: slices.Clone(p.Coauthors),
		CreatedAt: p.CreatedAt,
	}
}
