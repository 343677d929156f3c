package models

import (
	"slices"
	"time"
)

// ConferenceState is a phase of the conference lifecycle
type ConferenceState string

const (
	ConferenceCreated         ConferenceState = "CREATED"
	ConferenceSubmission      ConferenceState = "SUBMISSION"
	ConferenceAssignment      ConferenceState = "ASSIGNMENT"
	ConferenceReview          ConferenceState = "REVIEW"
	ConferenceDecision        ConferenceState = "DECISION"
	ConferenceFinalSubmission ConferenceState = "FINAL_SUBMISSION"
	ConferenceFinal           ConferenceState = "FINAL"
)

// conferenceOrder is the only path a conference may take
var conferenceOrder = []ConferenceState{
	ConferenceCreated,
	ConferenceSubmission,
	ConferenceAssignment,
	ConferenceReview,
	ConferenceDecision,
	ConferenceFinalSubmission,
	ConferenceFinal,
}

// Valid reports whether s is a known conference state
func (s ConferenceState) Valid() bool {
	return slices.Contains(conferenceOrder, s)
}

// Next returns the state that directly follows s
func (s ConferenceState) Next() (ConferenceState, bool) {
	i := slices.Index(conferenceOrder, s)
	if i < 0 || i == len(conferenceOrder)-1 {
		return "", false
	}
	return conferenceOrder[i+1], true
}

// PaperResolution is one pending step of the finalization plan
type PaperResolution struct {
	PaperID string     `json:"paper_id" bson:"paper_id"`
	Target  PaperState `json:"target" bson:"target"`
}

// Conference represents a conference and its program committee
type Conference struct {
	ID                 string            `json:"id" bson:"_id"`
	Name               string            `json:"name" bson:"name"`
	Description        string            `json:"description" bson:"description"`
	Chairs             []string          `json:"chairs" bson:"chairs"`
	Members            []string          `json:"members" bson:"members"`
	Papers             []string          `json:"papers" bson:"papers"`
	State              ConferenceState   `json:"state" bson:"state"`
	PendingResolutions []PaperResolution `json:"pending_resolutions,omitempty" bson:"pending_resolutions,omitempty"`
	Version            int64             `json:"version" bson:"version"`
	CreatedAt          time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" bson:"updated_at"`
}

// HasChair reports whether userID chairs the conference
func (c *Conference) HasChair(userID string) bool {
	return slices.Contains(c.Chairs, userID)
}

// HasMember reports whether userID is on the committee member list
func (c *Conference) HasMember(userID string) bool {
	return slices.Contains(c.Members, userID)
}

// HasPaper reports whether the paper was submitted to the conference
func (c *Conference) HasPaper(paperID string) bool {
	return slices.Contains(c.Papers, paperID)
}

// IsCommittee reports whether userID is a chair or a member
func (c *Conference) IsCommittee(userID string) bool {
	return c.HasChair(userID) || c.HasMember(userID)
}

// Finalizing reports whether a finalization plan is still pending
func (c *Conference) Finalizing() bool {
	return len(c.PendingResolutions) > 0
}

// Clone returns a deep copy of the conference
func (c *Conference) Clone() *Conference {
	cp := *c
	cp.Chairs = slices.Clone(c.Chairs)
	cp.Members = slices.Clone(c.Members)
	cp.Papers = slices.Clone(c.Papers)
	cp.PendingResolutions = slices.Clone(c.PendingResolutions)
	return &cp
}
