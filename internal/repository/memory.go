package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/pwannenmacher/ConfReview/internal/models"
)

// memoryDB is a mutex-guarded set of collections. Entities are cloned on the
// way in and out so callers never share memory with the store.
type memoryDB struct {
	mu          sync.RWMutex
	users       map[string]*models.User
	conferences map[string]*models.Conference
	papers      map[string]*models.Paper
	reviews     map[string]*models.Review
}

// NewMemoryStore creates a store backed by process memory
func NewMemoryStore() *Store {
	db := &memoryDB{
		users:       make(map[string]*models.User),
		conferences: make(map[string]*models.Conference),
		papers:      make(map[string]*models.Paper),
		reviews:     make(map[string]*models.Review),
	}
	return &Store{
		Users:       &MemoryUserRepository{db: db},
		Conferences: &MemoryConferenceRepository{db: db},
		Papers:      &MemoryPaperRepository{db: db},
		Reviews:     &MemoryReviewRepository{db: db},
	}
}

var (
	_ UserRepository       = (*MemoryUserRepository)(nil)
	_ ConferenceRepository = (*MemoryConferenceRepository)(nil)
	_ PaperRepository      = (*MemoryPaperRepository)(nil)
	_ ReviewRepository     = (*MemoryReviewRepository)(nil)
)

// MemoryUserRepository stores users in memory
type MemoryUserRepository struct {
	db *memoryDB
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.users[user.ID]; ok {
		return fmt.Errorf("user %s: %w", user.ID, ErrDuplicate)
	}
	for _, u := range r.db.users {
		if u.Username == user.Username {
			return fmt.Errorf("username %q: %w", user.Username, ErrDuplicate)
		}
	}
	user.Version = 1
	r.db.users[user.ID] = user.Clone()
	return nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	u, ok := r.db.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u.Clone(), nil
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, u := range r.db.users {
		if u.Username == username {
			return u.Clone(), nil
		}
	}
	return nil, fmt.Errorf("username %q: %w", username, ErrNotFound)
}

func (r *MemoryUserRepository) ListByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*models.User
	for _, id := range ids {
		if u, ok := r.db.users[id]; ok {
			out = append(out, u.Clone())
		}
	}
	return out, nil
}

func (r *MemoryUserRepository) Update(ctx context.Context, user *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.users[user.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", user.ID, ErrNotFound)
	}
	if cur.Version != user.Version {
		return fmt.Errorf("user %s: %w", user.ID, ErrVersionConflict)
	}
	user.Version++
	r.db.users[user.ID] = user.Clone()
	return nil
}

// MemoryConferenceRepository stores conferences in memory
type MemoryConferenceRepository struct {
	db *memoryDB
}

func (r *MemoryConferenceRepository) nameTaken(name, exceptID string) bool {
	for _, c := range r.db.conferences {
		if c.Name == name && c.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *MemoryConferenceRepository) Create(ctx context.Context, conf *models.Conference) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.conferences[conf.ID]; ok || r.nameTaken(conf.Name, "") {
		return fmt.Errorf("conference %q: %w", conf.Name, ErrDuplicate)
	}
	conf.Version = 1
	r.db.conferences[conf.ID] = conf.Clone()
	return nil
}

func (r *MemoryConferenceRepository) GetByID(ctx context.Context, id string) (*models.Conference, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	c, ok := r.db.conferences[id]
	if !ok {
		return nil, fmt.Errorf("conference %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

func (r *MemoryConferenceRepository) Update(ctx context.Context, conf *models.Conference) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.conferences[conf.ID]
	if !ok {
		return fmt.Errorf("conference %s: %w", conf.ID, ErrNotFound)
	}
	if cur.Version != conf.Version {
		return fmt.Errorf("conference %s: %w", conf.ID, ErrVersionConflict)
	}
	if r.nameTaken(conf.Name, conf.ID) {
		return fmt.Errorf("conference %q: %w", conf.Name, ErrDuplicate)
	}
	conf.Version++
	r.db.conferences[conf.ID] = conf.Clone()
	return nil
}

func (r *MemoryConferenceRepository) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.conferences[id]; !ok {
		return fmt.Errorf("conference %s: %w", id, ErrNotFound)
	}
	delete(r.db.conferences, id)
	return nil
}

func (r *MemoryConferenceRepository) ListByChair(ctx context.Context, userID string) ([]*models.Conference, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*models.Conference
	for _, c := range r.db.conferences {
		if c.HasChair(userID) {
			out = append(out, c.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Conference) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// MemoryPaperRepository stores papers in memory
type MemoryPaperRepository struct {
	db *memoryDB
}

func (r *MemoryPaperRepository) Create(ctx context.Context, paper *models.Paper) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.papers[paper.ID]; ok {
		return fmt.Errorf("paper %s: %w", paper.ID, ErrDuplicate)
	}
	paper.Version = 1
	r.db.papers[paper.ID] = paper.Clone()
	return nil
}

func (r *MemoryPaperRepository) GetByID(ctx context.Context, id string) (*models.Paper, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	p, ok := r.db.papers[id]
	if !ok {
		return nil, fmt.Errorf("paper %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

func (r *MemoryPaperRepository) Update(ctx context.Context, paper *models.Paper) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.papers[paper.ID]
	if !ok {
		return fmt.Errorf("paper %s: %w", paper.ID, ErrNotFound)
	}
	if cur.Version != paper.Version {
		return fmt.Errorf("paper %s: %w", paper.ID, ErrVersionConflict)
	}
	paper.Version++
	r.db.papers[paper.ID] = paper.Clone()
	return nil
}

func (r *MemoryPaperRepository) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.papers[id]; !ok {
		return fmt.Errorf("paper %s: %w", id, ErrNotFound)
	}
	delete(r.db.papers, id)
	for rid, rv := range r.db.reviews {
		if rv.PaperID == id {
			delete(r.db.reviews, rid)
		}
	}
	return nil
}

func (r *MemoryPaperRepository) filter(keep func(p *models.Paper) bool) []*models.Paper {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*models.Paper
	for _, p := range r.db.papers {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Paper) int {
		return cmp.Or(strings.Compare(a.Title, b.Title), strings.Compare(a.ID, b.ID))
	})
	return out
}

func (r *MemoryPaperRepository) ListByState(ctx context.Context, state models.PaperState) ([]*models.Paper, error) {
	return r.filter(func(p *models.Paper) bool { return p.State == state }), nil
}

func (r *MemoryPaperRepository) ListByConference(ctx context.Context, conferenceID string, state models.PaperState) ([]*models.Paper, error) {
	return r.filter(func(p *models.Paper) bool {
		return p.ConferenceID == conferenceID && p.State == state
	}), nil
}

func (r *MemoryPaperRepository) ListByParticipant(ctx context.Context, userID string) ([]*models.Paper, error) {
	return r.filter(func(p *models.Paper) bool { return p.IsParticipant(userID) }), nil
}

// MemoryReviewRepository stores reviews in memory
type MemoryReviewRepository struct {
	db *memoryDB
}

func (r *MemoryReviewRepository) Create(ctx context.Context, review *models.Review) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, rv := range r.db.reviews {
		if rv.PaperID == review.PaperID {
			return fmt.Errorf("review for paper %s: %w", review.PaperID, ErrDuplicate)
		}
	}
	cp := *review
	r.db.reviews[review.ID] = &cp
	return nil
}

func (r *MemoryReviewRepository) ListByPaper(ctx context.Context, paperID string) ([]*models.Review, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*models.Review
	for _, rv := range r.db.reviews {
		if rv.PaperID == paperID {
			cp := *rv
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *models.Review) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}
