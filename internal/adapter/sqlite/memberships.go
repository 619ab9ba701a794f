package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neomorfeo/orgstate/internal/domain"
)

// Compile-time check: Memberships implements domain.Authorizer.
var _ domain.Authorizer = (*Memberships)(nil)

// Memberships answers organization access questions from the memberships table.
type Memberships struct {
	db *sql.DB
}

// NewMemberships shares the repository's connection; migrations must already have run.
func NewMemberships(db *sql.DB) *Memberships {
	return &Memberships{db: db}
}

// HasAccess reports whether the actor is a member of the organization.
func (m *Memberships) HasAccess(ctx context.Context, actor domain.Actor, organizationID string) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx,
		`SELECT 1 FROM memberships WHERE actor_id = ? AND organization_id = ?`,
		actor.ID, organizationID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError("checking membership", err)
	}
	return true, nil
}

// Grant adds the actor to the organization, updating the role if already a member.
func (m *Memberships) Grant(ctx context.Context, actorID, organizationID, role string) error {
	if role == "" {
		role = "member"
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO memberships (actor_id, organization_id, role, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (actor_id, organization_id) DO UPDATE SET role = excluded.role`,
		actorID, organizationID, role, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return mapError("granting membership", err)
	}
	return nil
}

// Revoke removes the membership. Revoking a missing membership is not an error.
func (m *Memberships) Revoke(ctx context.Context, actorID, organizationID string) error {
	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE actor_id = ? AND organization_id = ?`,
		actorID, organizationID,
	); err != nil {
		return fmt.Errorf("revoking membership: %w", err)
	}
	return nil
}
