package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jmougeot/alarm-server/internal/store"
)

func scanGroup(row pgx.Row) (store.Group, error) {
	var g store.Group
	err := row.Scan(&g.ID, &g.Name, &g.CreatedAt)
	return g, err
}

// CreateGroup creates a group and inserts the creator as its first member in
// the same transaction.
func (s *Store) CreateGroup(ctx context.Context, name string, creatorID uuid.UUID) (store.Group, error) {
	var group store.Group
	err := WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO groups (name) VALUES ($1) RETURNING id, name, created_at`,
			name,
		)
		g, err := scanGroup(row)
		if err != nil {
			if IsUniqueViolation(err) {
				return store.ErrNameTaken
			}
			return err
		}
		group = g

		_, err = tx.Exec(ctx,
			`INSERT INTO group_memberships (group_id, user_id) VALUES ($1, $2)`,
			group.ID, creatorID,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNameTaken) {
			return store.Group{}, store.ErrNameTaken
		}
		return store.Group{}, fail("create group", err)
	}
	return group, nil
}

// AddMember inserts a membership row. Returns ErrNotFound if the group or user
// does not exist, ErrAlreadyMember if the pair already exists.
func (s *Store) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO group_memberships (group_id, user_id) VALUES ($1, $2)`,
		groupID, userID,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return store.ErrAlreadyMember
		}
		if IsForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fail("add member", err)
	}
	return nil
}

// RemoveMember deletes a membership row, reporting ErrNotFound if it did not exist.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM group_memberships WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	)
	if err != nil {
		return fail("remove member", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListGroupsOfUser returns the set of group ids the user belongs to.
func (s *Store) ListGroupsOfUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT group_id FROM group_memberships WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fail("list groups of user", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fail("scan group id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMembersOfGroup returns every user id belonging to a group. Not named in
// the core spec but needed by the administrative surface to enumerate
// membership.
func (s *Store) ListMembersOfGroup(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM group_memberships WHERE group_id = $1`,
		groupID,
	)
	if err != nil {
		return nil, fail("list members of group", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fail("scan member id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListGroups returns every group the given user is a member of. Supplemental
// admin-surface read, not named in the core spec.
func (s *Store) ListGroups(ctx context.Context, ownerID uuid.UUID) ([]store.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT g.id, g.name, g.created_at
		 FROM groups g
		 JOIN group_memberships m ON m.group_id = g.id
		 WHERE m.user_id = $1
		 ORDER BY g.created_at`,
		ownerID,
	)
	if err != nil {
		return nil, fail("list groups", err)
	}
	defer rows.Close()

	var groups []store.Group
	for rows.Next() {
		var g store.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fail("scan group", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
