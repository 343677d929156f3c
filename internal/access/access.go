// Package access implements the capability gate and the resource
// relationship checks consulted before every workflow operation.
package access

import (
	"errors"
	"fmt"

	"github.com/pwannenmacher/ConfReview/internal/models"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
)

// Capability is a coarse permission checked against the caller's roles
type Capability int

const (
	CapVisitor Capability = iota
	CapAuthor
	CapPCMember
	CapPCChair
)

func (c Capability) String() string {
	switch c {
	case CapVisitor:
		return "visitor"
	case CapAuthor:
		return "author"
	case CapPCMember:
		return "pc member"
	case CapPCChair:
		return "pc chair"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// RoleSet is a bit set of roles
type RoleSet uint8

const (
	roleVisitor RoleSet = 1 << iota
	roleAuthor
	rolePCChair
	rolePCMember
)

func roleBit(r models.Role) RoleSet {
	switch r {
	case models.RoleVisitor:
		return roleVisitor
	case models.RoleAuthor:
		return roleAuthor
	case models.RolePCChair:
		return rolePCChair
	case models.RolePCMember:
		return rolePCMember
	default:
		return 0
	}
}

// NewRoleSet builds a set from role names; unknown roles are ignored
func NewRoleSet(roles ...models.Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s |= roleBit(r)
	}
	return s
}

// Has reports whether r is in the set
func (s RoleSet) Has(r models.Role) bool {
	b := roleBit(r)
	return b != 0 && s&b == b
}

// Committee reports whether the set holds either committee role
func (s RoleSet) Committee() bool {
	return s&(rolePCChair|rolePCMember) != 0
}

// Roles lists the set members in a stable order
func (s RoleSet) Roles() []models.Role {
	out := make([]models.Role, 0, 4)
	for _, r := range []models.Role{models.RoleVisitor, models.RoleAuthor, models.RolePCChair, models.RolePCMember} {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// Identity is the authenticated caller of an operation
type Identity struct {
	UserID   string
	Username string
	Roles    RoleSet
	// Visitor identities are ephemeral and have no user record.
	Visitor bool
	// Generation is the user's token generation when the identity was
	// authenticated.
	Generation int64
}

// Allows reports whether the role set satisfies the capability.
// Committee roles are interchangeable at this level; chair-only actions are
// enforced by RequireChair against the resource.
func (s RoleSet) Allows(c Capability) bool {
	switch c {
	case CapVisitor:
		return true
	case CapAuthor:
		return s.Has(models.RoleAuthor)
	case CapPCMember, CapPCChair:
		return s.Committee()
	default:
		return false
	}
}

// Authorize checks the caller against a capability. A nil identity passes
// only the visitor capability.
func Authorize(id *Identity, c Capability) error {
	if c == CapVisitor {
		return nil
	}
	if id == nil {
		return ErrUnauthenticated
	}
	if !id.Roles.Allows(c) {
		return fmt.Errorf("%w: %s role required", ErrForbidden, c)
	}
	return nil
}

// RequireChair fails unless the caller chairs the conference
func RequireChair(id *Identity, conf *models.Conference) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if !conf.HasChair(id.UserID) {
		return fmt.Errorf("%w: not a chair of conference %q", ErrForbidden, conf.Name)
	}
	return nil
}

// RequireCommittee fails unless the caller chairs or sits on the conference
func RequireCommittee(id *Identity, conf *models.Conference) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if !conf.IsCommittee(id.UserID) {
		return fmt.Errorf("%w: not on the committee of conference %q", ErrForbidden, conf.Name)
	}
	return nil
}

// RequireAuthorship fails unless the caller is an author or coauthor
func RequireAuthorship(id *Identity, paper *models.Paper) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if !paper.IsParticipant(id.UserID) {
		return fmt.Errorf("%w: not an author of this paper", ErrForbidden)
	}
	return nil
}

// RequireOwnership fails unless the caller is one of the paper's authors
func RequireOwnership(id *Identity, paper *models.Paper) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if !paper.IsAuthor(id.UserID) {
		return fmt.Errorf("%w: only authors may do this", ErrForbidden)
	}
	return nil
}
