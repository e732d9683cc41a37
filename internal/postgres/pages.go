package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jmougeot/alarm-server/internal/authz"
	"github.com/jmougeot/alarm-server/internal/store"
)

func scanPage(row pgx.Row) (store.Page, error) {
	var p store.Page
	err := row.Scan(&p.ID, &p.Name, &p.OwnerID, &p.CreatedAt)
	return p, err
}

// CreatePage creates a page with the given owner. Duplicate names are
// permitted; there is no uniqueness constraint on pages.name.
func (s *Store) CreatePage(ctx context.Context, name string, ownerID uuid.UUID) (store.Page, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO pages (name, owner_id) VALUES ($1, $2)
		 RETURNING id, name, owner_id, created_at`,
		name, ownerID,
	)
	p, err := scanPage(row)
	if err != nil {
		return store.Page{}, fail("create page", err)
	}
	return p, nil
}

// GetPage fetches a page by id.
func (s *Store) GetPage(ctx context.Context, pageID uuid.UUID) (store.Page, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, owner_id, created_at FROM pages WHERE id = $1`,
		pageID,
	)
	p, err := scanPage(row)
	if err != nil {
		return store.Page{}, wrapNotFound(err)
	}
	return p, nil
}

// ListPagesVisibleTo returns every page the user owns, plus every page they
// hold a direct or group-mediated grant on (any row at all — the AuthzResolver,
// not this query, decides what can_view/can_edit ultimately mean). CanEdit in
// the result is the union of the caller's own and group-mediated can_edit rows;
// callers needing the full resolved verdict should run it through
// internal/authz instead of trusting this read alone for decisions.
func (s *Store) ListPagesVisibleTo(ctx context.Context, userID uuid.UUID) ([]store.VisiblePage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.name, p.owner_id, p.created_at,
		        (p.owner_id = $1) AS is_owner,
		        COALESCE(bool_or(pp.can_edit), false) AS can_edit
		 FROM pages p
		 LEFT JOIN page_permissions pp ON pp.page_id = p.id
		   AND ((pp.subject_type = 'user' AND pp.subject_id = $1)
		     OR (pp.subject_type = 'group' AND pp.subject_id IN (
		           SELECT group_id FROM group_memberships WHERE user_id = $1)))
		 WHERE p.owner_id = $1 OR EXISTS (
		     SELECT 1 FROM page_permissions pp2 WHERE pp2.page_id = p.id
		       AND ((pp2.subject_type = 'user' AND pp2.subject_id = $1)
		         OR (pp2.subject_type = 'group' AND pp2.subject_id IN (
		               SELECT group_id FROM group_memberships WHERE user_id = $1))))
		 GROUP BY p.id, p.name, p.owner_id, p.created_at
		 ORDER BY p.created_at`,
		userID,
	)
	if err != nil {
		return nil, fail("list pages visible to", err)
	}
	defer rows.Close()

	var pages []store.VisiblePage
	for rows.Next() {
		var vp store.VisiblePage
		if err := rows.Scan(&vp.Page.ID, &vp.Page.Name, &vp.Page.OwnerID, &vp.Page.CreatedAt, &vp.IsOwner, &vp.CanEdit); err != nil {
			return nil, fail("scan visible page", err)
		}
		if vp.IsOwner {
			vp.CanEdit = true
		}
		pages = append(pages, vp)
	}
	return pages, rows.Err()
}

func subjectColumns(s store.Subject) (string, uuid.UUID) {
	return string(s.Type), s.ID
}

// UpsertPermission stores (or replaces) a permission row. The caller is
// expected to have already verified page ownership before invoking this;
// UpsertPermission itself only rejects a grant targeting the page's own owner.
func (s *Store) UpsertPermission(ctx context.Context, pageID uuid.UUID, subject store.Subject, canView, canEdit bool) error {
	subjType, subjID := subjectColumns(subject)

	return WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if subject.Type == store.SubjectUser {
			page, err := s.getPageTx(ctx, tx, pageID)
			if err != nil {
				return err
			}
			if page.OwnerID == subjID {
				return store.ErrInvalidSubject
			}
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO page_permissions (page_id, subject_type, subject_id, can_view, can_edit, updated_at)
			 VALUES ($1, $2, $3, $4, $5, now())
			 ON CONFLICT (page_id, subject_type, subject_id)
			 DO UPDATE SET can_view = EXCLUDED.can_view, can_edit = EXCLUDED.can_edit, updated_at = now()`,
			pageID, subjType, subjID, canView, canEdit,
		)
		if err != nil {
			if IsForeignKeyViolation(err) {
				return store.ErrInvalidSubject
			}
			return err
		}
		return nil
	})
}

func (s *Store) getPageTx(ctx context.Context, tx pgx.Tx, pageID uuid.UUID) (store.Page, error) {
	row := tx.QueryRow(ctx, `SELECT id, name, owner_id, created_at FROM pages WHERE id = $1`, pageID)
	p, err := scanPage(row)
	if err != nil {
		return store.Page{}, wrapNotFound(err)
	}
	return p, nil
}

// DeletePermission removes a single grant, reporting ErrNotFound if it did not exist.
func (s *Store) DeletePermission(ctx context.Context, pageID uuid.UUID, subject store.Subject) error {
	subjType, subjID := subjectColumns(subject)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM page_permissions WHERE page_id = $1 AND subject_type = $2 AND subject_id = $3`,
		pageID, subjType, subjID,
	)
	if err != nil {
		return fail("delete permission", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListPagesWithGroupPermission returns every page holding a permission row
// naming groupID as its subject.
func (s *Store) ListPagesWithGroupPermission(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT page_id FROM page_permissions WHERE subject_type = 'group' AND subject_id = $1`,
		groupID,
	)
	if err != nil {
		return nil, fail("list pages with group permission", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fail("scan page id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPermissions returns every grant on a page.
func (s *Store) ListPermissions(ctx context.Context, pageID uuid.UUID) ([]store.PagePermission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT page_id, subject_type, subject_id, can_view, can_edit, updated_at
		 FROM page_permissions WHERE page_id = $1`,
		pageID,
	)
	if err != nil {
		return nil, fail("list permissions", err)
	}
	defer rows.Close()

	var perms []store.PagePermission
	for rows.Next() {
		var (
			pp       store.PagePermission
			subjType string
		)
		if err := rows.Scan(&pp.PageID, &subjType, &pp.Subject.ID, &pp.CanView, &pp.CanEdit, &pp.UpdatedAt); err != nil {
			return nil, fail("scan permission", err)
		}
		pp.Subject.Type = store.SubjectType(subjType)
		perms = append(perms, pp)
	}
	return perms, rows.Err()
}

// UsersWithViewAccess computes the fan-out audience for a page: owner, direct
// user grants with can_view or can_edit, and members of any group grant with
// can_view or can_edit.
// The set itself is computed by authz.Audience, which is also what SetPermission
// and DeletePermission's REST handlers use to recompute a before/after diff —
// this is the one place that logic lives.
func (s *Store) UsersWithViewAccess(ctx context.Context, pageID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	page, err := s.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	rows, err := s.ListPermissions(ctx, pageID)
	if err != nil {
		return nil, err
	}
	return authz.Audience(page, rows, func(groupID uuid.UUID) ([]uuid.UUID, error) {
		return s.ListMembersOfGroup(ctx, groupID)
	})
}
