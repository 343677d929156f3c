// Package repository defines the document store contract of the workflow
// and its PostgreSQL, MongoDB and in-memory implementations.
package repository

import (
	"context"
	"errors"

	"github.com/pwannenmacher/ConfReview/internal/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate key")
	ErrVersionConflict = errors.New("version conflict")
)

// Every Create stores the entity at version 1. Every Update is a
// compare-and-swap: it succeeds only while the stored version equals the
// entity's Version, after which the entity's Version is incremented.
// A stale write returns ErrVersionConflict and changes nothing.

// UserRepository persists users. Usernames are unique.
type UserRepository interface {
	// Create returns ErrDuplicate when the username is taken.
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// ListByIDs returns the users that exist among ids, in no particular order.
	ListByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// ConferenceRepository persists conferences. Names are unique.
type ConferenceRepository interface {
	Create(ctx context.Context, conf *models.Conference) error
	GetByID(ctx context.Context, id string) (*models.Conference, error)
	// Update returns ErrDuplicate when a rename collides with another conference.
	Update(ctx context.Context, conf *models.Conference) error
	Delete(ctx context.Context, id string) error
	// ListByChair returns the conferences chaired by userID ordered by name.
	ListByChair(ctx context.Context, userID string) ([]*models.Conference, error)
}

// PaperRepository persists papers.
type PaperRepository interface {
	Create(ctx context.Context, paper *models.Paper) error
	GetByID(ctx context.Context, id string) (*models.Paper, error)
	Update(ctx context.Context, paper *models.Paper) error
	Delete(ctx context.Context, id string) error
	// ListByState returns papers in the given state ordered by title.
	ListByState(ctx context.Context, state models.PaperState) ([]*models.Paper, error)
	// ListByConference returns the conference's papers in the given state.
	ListByConference(ctx context.Context, conferenceID string, state models.PaperState) ([]*models.Paper, error)
	// ListByParticipant returns papers where userID is author or coauthor,
	// ordered by title.
	ListByParticipant(ctx context.Context, userID string) ([]*models.Paper, error)
}

// ReviewRepository persists reviews. At most one review exists per paper.
type ReviewRepository interface {
	// Create returns ErrDuplicate when the paper already has a review.
	Create(ctx context.Context, review *models.Review) error
	ListByPaper(ctx context.Context, paperID string) ([]*models.Review, error)
}

// Store bundles the repositories of one backend
type Store struct {
	Users       UserRepository
	Conferences ConferenceRepository
	Papers      PaperRepository
	Reviews     ReviewRepository
}
