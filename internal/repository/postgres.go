package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pwannenmacher/ConfReview/internal/models"
)

// NewPostgresStore creates a store backed by PostgreSQL
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Users:       NewPostgresUserRepository(db),
		Conferences: NewPostgresConferenceRepository(db),
		Papers:      NewPostgresPaperRepository(db),
		Reviews:     NewPostgresReviewRepository(db),
	}
}

var (
	_ UserRepository       = (*PostgresUserRepository)(nil)
	_ ConferenceRepository = (*PostgresConferenceRepository)(nil)
	_ PaperRepository      = (*PostgresPaperRepository)(nil)
	_ ReviewRepository     = (*PostgresReviewRepository)(nil)
)

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// casFailure tells a missing row apart from a stale version after an
// UPDATE matched nothing
func casFailure(ctx context.Context, db *sql.DB, table, id string) error {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s %s: %w", table, id, err)
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", table, id, ErrVersionConflict)
}

func checkUpdated(ctx context.Context, db *sql.DB, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return casFailure(ctx, db, table, id)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func rolesToStrings(roles []models.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func stringsToRoles(s []string) []models.Role {
	out := make([]models.Role, len(s))
	for i, r := range s {
		out[i] = models.Role(r)
	}
	return out
}

// nonNil keeps empty arrays from being written as NULL
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// PostgresUserRepository handles user database operations
type PostgresUserRepository struct {
	db *sql.DB
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, username, password_hash, first_name, last_name, roles, logged_out_at, token_generation, version, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var roles []string
	var loggedOut sql.NullTime
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		pq.Array(&roles),
		&loggedOut,
		&u.TokenGeneration,
		&u.Version,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Roles = stringsToRoles(roles)
	u.LoggedOutAt = timePtr(loggedOut)
	return u, nil
}

// Create creates a new user
func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		pq.Array(rolesToStrings(user.Roles)),
		nullTime(user.LoggedOutAt),
		user.TokenGeneration,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %q: %w", user.Username, ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.Version = 1
	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username
func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("username %q: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListByIDs retrieves the existing users among ids
func (r *PostgresUserRepository) ListByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update writes the user if its version is current
func (r *PostgresUserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET username = $2, password_hash = $3, first_name = $4, last_name = $5,
		    roles = $6, logged_out_at = $7, token_generation = $8, updated_at = $9,
		    version = version + 1
		WHERE id = $1 AND version = $10
	`

	res, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		pq.Array(rolesToStrings(user.Roles)),
		nullTime(user.LoggedOutAt),
		user.TokenGeneration,
		user.UpdatedAt,
		user.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %q: %w", user.Username, ErrDuplicate)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if err := checkUpdated(ctx, r.db, res, "users", user.ID); err != nil {
		return err
	}

	user.Version++
	return nil
}

// PostgresConferenceRepository handles conference database operations
type PostgresConferenceRepository struct {
	db *sql.DB
}

// NewPostgresConferenceRepository creates a new conference repository
func NewPostgresConferenceRepository(db *sql.DB) *PostgresConferenceRepository {
	return &PostgresConferenceRepository{db: db}
}

const conferenceColumns = `id, name, description, chairs, members, papers, state, pending_resolutions, version, created_at, updated_at`

func scanConference(row rowScanner) (*models.Conference, error) {
	c := &models.Conference{}
	var pending []byte
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		pq.Array(&c.Chairs),
		pq.Array(&c.Members),
		pq.Array(&c.Papers),
		&c.State,
		&pending,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if !c.State.Valid() {
		return nil, fmt.Errorf("conference %s has unknown state %q", c.ID, c.State)
	}
	if err := json.Unmarshal(pending, &c.PendingResolutions); err != nil {
		return nil, fmt.Errorf("failed to decode pending resolutions: %w", err)
	}
	if len(c.PendingResolutions) == 0 {
		c.PendingResolutions = nil
	}
	return c, nil
}

func encodePending(p []models.PaperResolution) ([]byte, error) {
	if p == nil {
		p = []models.PaperResolution{}
	}
	return json.Marshal(p)
}

// Create creates a new conference
func (r *PostgresConferenceRepository) Create(ctx context.Context, conf *models.Conference) error {
	pending, err := encodePending(conf.PendingResolutions)
	if err != nil {
		return fmt.Errorf("failed to encode pending resolutions: %w", err)
	}

	query := `
		INSERT INTO conferences (` + conferenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		conf.ID,
		conf.Name,
		conf.Description,
		pq.Array(nonNil(conf.Chairs)),
		pq.Array(nonNil(conf.Members)),
		pq.Array(nonNil(conf.Papers)),
		conf.State,
		pending,
		conf.CreatedAt,
		conf.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("conference %q: %w", conf.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to create conference: %w", err)
	}

	conf.Version = 1
	return nil
}

// GetByID retrieves a conference by ID
func (r *PostgresConferenceRepository) GetByID(ctx context.Context, id string) (*models.Conference, error) {
	query := `SELECT ` + conferenceColumns + ` FROM conferences WHERE id = $1`

	conf, err := scanConference(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conference %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get conference: %w", err)
	}
	return conf, nil
}

// Update writes the conference if its version is current
func (r *PostgresConferenceRepository) Update(ctx context.Context, conf *models.Conference) error {
	pending, err := encodePending(conf.PendingResolutions)
	if err != nil {
		return fmt.Errorf("failed to encode pending resolutions: %w", err)
	}

	query := `
		UPDATE conferences
		SET name = $2, description = $3, chairs = $4, members = $5, papers = $6,
		    state = $7, pending_resolutions = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $10
	`
	res, err := r.db.ExecContext(ctx, query,
		conf.ID,
		conf.Name,
		conf.Description,
		pq.Array(nonNil(conf.Chairs)),
		pq.Array(nonNil(conf.Members)),
		pq.Array(nonNil(conf.Papers)),
		conf.State,
		pending,
		conf.UpdatedAt,
		conf.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("conference %q: %w", conf.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to update conference: %w", err)
	}
	if err := checkUpdated(ctx, r.db, res, "conferences", conf.ID); err != nil {
		return err
	}

	conf.Version++
	return nil
}

// Delete removes a conference
func (r *PostgresConferenceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conferences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conference: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conference %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListByChair lists the conferences chaired by userID
func (r *PostgresConferenceRepository) ListByChair(ctx context.Context, userID string) ([]*models.Conference, error) {
	query := `SELECT ` + conferenceColumns + ` FROM conferences WHERE $1 = ANY(chairs) ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conferences: %w", err)
	}
	defer rows.Close()

	var confs []*models.Conference
	for rows.Next() {
		c, err := scanConference(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conference: %w", err)
		}
		confs = append(confs, c)
	}
	return confs, rows.Err()
}

// PostgresPaperRepository handles paper database operations
type PostgresPaperRepository struct {
	db *sql.DB
}

// NewPostgresPaperRepository creates a new paper repository
func NewPostgresPaperRepository(db *sql.DB) *PostgresPaperRepository {
	return &PostgresPaperRepository{db: db}
}

const paperColumns = `id, title, abstract, content, conference_id, authors, coauthors, reviewers, state, final_content, final_submitted_at, version, created_at, updated_at`

func scanPaper(row rowScanner) (*models.Paper, error) {
	p := &models.Paper{}
	var conferenceID sql.NullString
	var finalAt sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Abstract,
		&p.Content,
		&conferenceID,
		pq.Array(&p.Authors),
		pq.Array(&p.Coauthors),
		pq.Array(&p.Reviewers),
		&p.State,
		&p.FinalContent,
		&finalAt,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ConferenceID = conferenceID.String
	p.FinalSubmittedAt = timePtr(finalAt)
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create creates a new paper
func (r *PostgresPaperRepository) Create(ctx context.Context, paper *models.Paper) error {
	query := `
		INSERT INTO papers (` + paperColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		paper.ID,
		paper.Title,
		paper.Abstract,
		paper.Content,
		nullString(paper.ConferenceID),
		pq.Array(nonNil(paper.Authors)),
		pq.Array(nonNil(paper.Coauthors)),
		pq.Array(nonNil(paper.Reviewers)),
		paper.State,
		paper.FinalContent,
		nullTime(paper.FinalSubmittedAt),
		paper.CreatedAt,
		paper.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("paper %s: %w", paper.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create paper: %w", err)
	}

	paper.Version = 1
	return nil
}

// GetByID retrieves a paper by ID
func (r *PostgresPaperRepository) GetByID(ctx context.Context, id string) (*models.Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM papers WHERE id = $1`

	paper, err := scanPaper(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("paper %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}
	return paper, nil
}

// Update writes the paper if its version is current
func (r *PostgresPaperRepository) Update(ctx context.Context, paper *models.Paper) error {
	query := `
		UPDATE papers
		SET title = $2, abstract = $3, content = $4, conference_id = $5, authors = $6,
		    coauthors = $7, reviewers = $8, state = $9, final_content = $10,
		    final_submitted_at = $11, updated_at = $12, version = version + 1
		WHERE id = $1 AND version = $13
	`
	res, err := r.db.ExecContext(ctx, query,
		paper.ID,
		paper.Title,
		paper.Abstract,
		paper.Content,
		nullString(paper.ConferenceID),
		pq.Array(nonNil(paper.Authors)),
		pq.Array(nonNil(paper.Coauthors)),
		pq.Array(nonNil(paper.Reviewers)),
		paper.State,
		paper.FinalContent,
		nullTime(paper.FinalSubmittedAt),
		paper.UpdatedAt,
		paper.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update paper: %w", err)
	}
	if err := checkUpdated(ctx, r.db, res, "papers", paper.ID); err != nil {
		return err
	}

	paper.Version++
	return nil
}

// Delete removes a paper and, through the foreign key, its reviews
func (r *PostgresPaperRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM papers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete paper: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("paper %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *PostgresPaperRepository) list(ctx context.Context, where string, args ...any) ([]*models.Paper, error) {
	query := `SELECT ` + paperColumns + ` FROM papers WHERE ` + where + ` ORDER BY title, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	var papers []*models.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// ListByState lists papers in a state
func (r *PostgresPaperRepository) ListByState(ctx context.Context, state models.PaperState) ([]*models.Paper, error) {
	return r.list(ctx, `state = $1`, state)
}

// ListByConference lists a conference's papers in a state
func (r *PostgresPaperRepository) ListByConference(ctx context.Context, conferenceID string, state models.PaperState) ([]*models.Paper, error) {
	return r.list(ctx, `conference_id = $1 AND state = $2`, conferenceID, state)
}

// ListByParticipant lists papers authored or coauthored by userID
func (r *PostgresPaperRepository) ListByParticipant(ctx context.Context, userID string) ([]*models.Paper, error) {
	return r.list(ctx, `$1 = ANY(authors) OR $1 = ANY(coauthors)`, userID)
}

// PostgresReviewRepository handles review database operations
type PostgresReviewRepository struct {
	db *sql.DB
}

// NewPostgresReviewRepository creates a new review repository
func NewPostgresReviewRepository(db *sql.DB) *PostgresReviewRepository {
	return &PostgresReviewRepository{db: db}
}

// Create records a review; the unique index on paper_id rejects a second one
func (r *PostgresReviewRepository) Create(ctx context.Context, review *models.Review) error {
	query := `
		INSERT INTO reviews (id, paper_id, reviewer_id, score, justification, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		review.ID,
		review.PaperID,
		review.ReviewerID,
		review.Score,
		review.Justification,
		review.CreatedAt,
		review.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("review for paper %s: %w", review.PaperID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create review: %w", err)
	}
	return nil
}

// ListByPaper lists the reviews of a paper
func (r *PostgresReviewRepository) ListByPaper(ctx context.Context, paperID string) ([]*models.Review, error) {
	query := `
		SELECT id, paper_id, reviewer_id, score, justification, created_at, updated_at
		FROM reviews
		WHERE paper_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		rv := &models.Review{}
		if err := rows.Scan(&rv.ID, &rv.PaperID, &rv.ReviewerID, &rv.Score, &rv.Justification, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}
