package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jmougeot/alarm-server/internal/auth"
	"github.com/jmougeot/alarm-server/internal/authz"
	"github.com/jmougeot/alarm-server/internal/authzcache"
	"github.com/jmougeot/alarm-server/internal/gateway"
	"github.com/jmougeot/alarm-server/internal/httputil"
	"github.com/jmougeot/alarm-server/internal/sanitize"
	"github.com/jmougeot/alarm-server/internal/store"
)

// PageHandler serves page and permission management endpoints.
type PageHandler struct {
	store       store.Store
	broadcaster *gateway.Broadcaster
	log         zerolog.Logger

	// verdicts caches resolved access verdicts for GetAccess. Optional: a nil
	// cache makes every call resolve directly against the Store.
	verdicts *authzcache.Cache
}

// NewPageHandler creates a new page handler. verdicts and broadcaster may
// both be nil: a nil cache makes GetAccess resolve directly against the
// Store, and a nil broadcaster means permission mutations never notify
// connected sessions.
func NewPageHandler(st store.Store, verdicts *authzcache.Cache, broadcaster *gateway.Broadcaster, logger zerolog.Logger) *PageHandler {
	return &PageHandler{store: st, log: logger, verdicts: verdicts, broadcaster: broadcaster}
}

type createPageRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

type pageResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt string    `json:"created_at"`
}

func toPageResponse(p store.Page) pageResponse {
	return pageResponse{ID: p.ID, Name: p.Name, OwnerID: p.OwnerID, CreatedAt: p.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}
}

// Create handles POST /api/v1/pages.
func (h *PageHandler) Create(c fiber.Ctx) error {
	userID := auth.UserID(c)

	var body createPageRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeInvalidBody, "Invalid request body")
	}
	if err := httputil.Validate(body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, err.Error())
	}

	page, err := h.store.CreatePage(c.Context(), sanitize.Text(body.Name), userID)
	if err != nil {
		return h.mapPageError(c, err)
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, toPageResponse(page))
}

// List handles GET /api/v1/pages, returning pages visible to the caller.
func (h *PageHandler) List(c fiber.Ctx) error {
	userID := auth.UserID(c)

	pages, err := h.store.ListPagesVisibleTo(c.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "page").Msg("list pages failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternalError, "An internal error occurred")
	}

	type visiblePageResponse struct {
		Page    pageResponse `json:"page"`
		IsOwner bool         `json:"is_owner"`
		CanEdit bool         `json:"can_edit"`
	}
	result := make([]visiblePageResponse, len(pages))
	for i, vp := range pages {
		result[i] = visiblePageResponse{Page: toPageResponse(vp.Page), IsOwner: vp.IsOwner, CanEdit: vp.CanEdit}
	}
	return httputil.Success(c, result)
}

// GetAccess handles GET /api/v1/pages/:id/access, returning the caller's
// resolved view/edit/share verdict on the page. Backed by a short-lived
// Valkey cache when one is configured, since this is the admin surface's
// hottest per-page check and the gateway's own authorization path never
// touches this cache.
func (h *PageHandler) GetAccess(c fiber.Ctx) error {
	userID := auth.UserID(c)

	pageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, "Invalid page ID format")
	}

	if h.verdicts != nil {
		if verdict, ok := h.verdicts.Get(c.Context(), userID, pageID); ok {
			return httputil.Success(c, verdict)
		}
	}

	page, err := h.store.GetPage(c.Context(), pageID)
	if err != nil {
		return h.mapPageError(c, err)
	}
	groupIDs, err := h.store.ListGroupsOfUser(c.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "page").Msg("list groups of user failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternalError, "An internal error occurred")
	}
	rows, err := h.store.ListPermissions(c.Context(), pageID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "page").Msg("list permissions failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternalError, "An internal error occurred")
	}

	verdict := authz.Resolve(userID, page, authz.GroupSet(groupIDs), rows)
	if h.verdicts != nil {
		if err := h.verdicts.Set(c.Context(), userID, pageID, verdict); err != nil {
			h.log.Warn().Err(err).Msg("cache verdict failed")
		}
	}
	return httputil.Success(c, verdict)
}

type setPermissionRequest struct {
	SubjectType string `json:"subject_type" validate:"required,oneof=user group"`
	SubjectID   string `json:"subject_id" validate:"required,uuid"`
	CanView     bool   `json:"can_view"`
	CanEdit     bool   `json:"can_edit"`
}

// SetPermission handles PUT /api/v1/pages/:id/permissions. Only the page owner
// may call this — that check happens at the gateway dispatcher for WebSocket
// commands, and is re-derived here from the Store for the REST surface since
// this endpoint bypasses the dispatcher entirely. It also bypasses the
// dispatcher's own audience-diff broadcast, so SetPermission recomputes and
// sends it itself, the same way sharePage does on the WebSocket surface.
func (h *PageHandler) SetPermission(c fiber.Ctx) error {
	userID := auth.UserID(c)

	pageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, "Invalid page ID format")
	}

	var body setPermissionRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeInvalidBody, "Invalid request body")
	}
	if err := httputil.Validate(body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, err.Error())
	}

	subjectType, err := parseSubjectType(body.SubjectType)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, err.Error())
	}
	subjectID, err := uuid.Parse(body.SubjectID)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, "Invalid subject_id format")
	}

	page, err := h.store.GetPage(c.Context(), pageID)
	if err != nil {
		return h.mapPageError(c, err)
	}
	if page.OwnerID != userID {
		return httputil.Fail(c, fiber.StatusForbidden, httputil.CodeForbidden, "Only the page owner may manage permissions")
	}

	before := h.audienceSnapshot(c.Context(), pageID)

	subject := store.Subject{Type: subjectType, ID: subjectID}
	if err := h.store.UpsertPermission(c.Context(), pageID, subject, body.CanView, body.CanEdit); err != nil {
		return h.mapPageError(c, err)
	}
	h.invalidateAccessCache(c.Context(), pageID)
	h.notifyAudienceChange(c.Context(), pageID, before)

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PageHandler) invalidateAccessCache(ctx context.Context, pageID uuid.UUID) {
	if h.verdicts == nil {
		return
	}
	if err := h.verdicts.InvalidatePage(ctx, pageID); err != nil {
		h.log.Warn().Err(err).Msg("invalidate cached verdicts failed")
	}
}

// audienceSnapshot captures pageID's current view-access audience, or nil if
// no broadcaster is wired or the read fails. notifyAudienceChange treats a
// nil snapshot as "nothing to diff".
func (h *PageHandler) audienceSnapshot(ctx context.Context, pageID uuid.UUID) map[uuid.UUID]struct{} {
	if h.broadcaster == nil {
		return nil
	}
	audience, err := h.store.UsersWithViewAccess(ctx, pageID)
	if err != nil {
		h.log.Warn().Err(err).Str("page_id", pageID.String()).Msg("audience snapshot failed")
		return nil
	}
	return audience
}

// notifyAudienceChange recomputes pageID's audience after a permission
// mutation commits and broadcasts the diff. Best-effort: a nil snapshot or a
// failed re-read is logged and skipped rather than surfaced to the caller,
// since the permission mutation itself has already succeeded.
func (h *PageHandler) notifyAudienceChange(ctx context.Context, pageID uuid.UUID, before map[uuid.UUID]struct{}) {
	if h.broadcaster == nil || before == nil {
		return
	}
	after, err := h.store.UsersWithViewAccess(ctx, pageID)
	if err != nil {
		h.log.Warn().Err(err).Str("page_id", pageID.String()).Msg("audience diff failed")
		return
	}
	h.broadcaster.BroadcastAudienceDiff(ctx, pageID, before, after)
}

// DeletePermission handles DELETE /api/v1/pages/:id/permissions/:subjectType/:subjectID.
func (h *PageHandler) DeletePermission(c fiber.Ctx) error {
	userID := auth.UserID(c)

	pageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, "Invalid page ID format")
	}

	subjectType, err := parseSubjectType(c.Params("subjectType"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, err.Error())
	}
	subjectID, err := uuid.Parse(c.Params("subjectID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, "Invalid subject ID format")
	}

	page, err := h.store.GetPage(c.Context(), pageID)
	if err != nil {
		return h.mapPageError(c, err)
	}
	if page.OwnerID != userID {
		return httputil.Fail(c, fiber.StatusForbidden, httputil.CodeForbidden, "Only the page owner may manage permissions")
	}

	before := h.audienceSnapshot(c.Context(), pageID)

	subject := store.Subject{Type: subjectType, ID: subjectID}
	if err := h.store.DeletePermission(c.Context(), pageID, subject); err != nil {
		return h.mapPageError(c, err)
	}
	h.invalidateAccessCache(c.Context(), pageID)
	h.notifyAudienceChange(c.Context(), pageID, before)

	return c.SendStatus(fiber.StatusNoContent)
}

func parseSubjectType(s string) (store.SubjectType, error) {
	switch store.SubjectType(s) {
	case store.SubjectUser:
		return store.SubjectUser, nil
	case store.SubjectGroup:
		return store.SubjectGroup, nil
	default:
		return "", errors.New("subject_type must be \"user\" or \"group\"")
	}
}

func (h *PageHandler) mapPageError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "Page not found")
	case errors.Is(err, store.ErrNameTaken):
		return httputil.Fail(c, fiber.StatusConflict, httputil.CodeConflict, err.Error())
	case errors.Is(err, store.ErrInvalidSubject):
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, err.Error())
	case errors.Is(err, store.ErrNotOwner):
		return httputil.Fail(c, fiber.StatusForbidden, httputil.CodeForbidden, err.Error())
	default:
		h.log.Error().Err(err).Str("handler", "page").Msg("unhandled page store error")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternalError, "An internal error occurred")
	}
}
