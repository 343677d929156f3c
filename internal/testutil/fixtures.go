package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/auth"
	"github.com/pwannenmacher/ConfReview/internal/models"
)

// FixturePassword is the password of every seeded user
const FixturePassword = "password123"

// FixtureTime is the clock reading seeded records carry
var FixtureTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// UserCreator is the part of the user repository fixtures need
type UserCreator interface {
	Create(ctx context.Context, user *models.User) error
}

// Fixtures holds the seeded users
type Fixtures struct {
	Chair      *models.User
	OtherChair *models.User
	Member     *models.User
	Author     *models.User
	Coauthor   *models.User
	Outsider   *models.User
}

// SetupFixtures seeds one user per role the workflow tests need
func SetupFixtures(t *testing.T, users UserCreator) *Fixtures {
	t.Helper()

	hash, err := auth.NewService(JWTConfig()).HashPassword(FixturePassword)
	if err != nil {
		t.Fatalf("Failed to hash fixture password: %v", err)
	}

	return &Fixtures{
		Chair:      createUser(t, users, hash, "chair-1", "chair", "Carla", "Chair", models.RolePCChair),
		OtherChair: createUser(t, users, hash, "chair-2", "otherchair", "Otto", "Chair", models.RolePCChair),
		Member:     createUser(t, users, hash, "member-1", "member", "Mia", "Member", models.RolePCMember),
		Author:     createUser(t, users, hash, "author-1", "author", "Ada", "Author", models.RoleAuthor),
		Coauthor:   createUser(t, users, hash, "author-2", "coauthor", "", "", models.RoleAuthor),
		Outsider:   createUser(t, users, hash, "author-3", "outsider", "Olga", "Outsider", models.RoleAuthor),
	}
}

func createUser(t *testing.T, users UserCreator, hash, id, username, first, last string, roles ...models.Role) *models.User {
	t.Helper()

	u := &models.User{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		FirstName:    first,
		LastName:     last,
		Roles:        roles,
		CreatedAt:    FixtureTime,
		UpdatedAt:    FixtureTime,
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return u
}

// Identity returns the caller identity of a seeded user
func Identity(u *models.User) *access.Identity {
	return &access.Identity{
		UserID:   u.ID,
		Username: u.Username,
		Roles:    access.NewRoleSet(u.Roles...),
	}
}

// VisitorIdentity returns an anonymous visitor identity
func VisitorIdentity() *access.Identity {
	return &access.Identity{
		UserID:  "visitor-1",
		Roles:   access.NewRoleSet(models.RoleVisitor),
		Visitor: true,
	}
}
