package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jmougeot/alarm-server/internal/auth"
	"github.com/jmougeot/alarm-server/internal/gateway"
	"github.com/jmougeot/alarm-server/internal/httputil"
	"github.com/jmougeot/alarm-server/internal/sanitize"
	"github.com/jmougeot/alarm-server/internal/store"
)

// GroupHandler serves group and membership management endpoints.
type GroupHandler struct {
	store       store.Store
	broadcaster *gateway.Broadcaster
	log         zerolog.Logger
}

// NewGroupHandler creates a new group handler. broadcaster may be nil, in
// which case membership changes are never reflected to connected sessions.
func NewGroupHandler(st store.Store, broadcaster *gateway.Broadcaster, logger zerolog.Logger) *GroupHandler {
	return &GroupHandler{store: st, broadcaster: broadcaster, log: logger}
}

type createGroupRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

type groupResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt string    `json:"created_at"`
}

func toGroupResponse(g store.Group) groupResponse {
	return groupResponse{ID: g.ID, Name: g.Name, CreatedAt: g.CreatedAt.Format("2006-01-02T15:04:05Z07:00")}
}

// Create handles POST /api/v1/groups. The caller becomes the group's first member.
func (h *GroupHandler) Create(c fiber.Ctx) error {
	userID := auth.UserID(c)

	var body createGroupRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeInvalidBody, "Invalid request body")
	}
	if err := httputil.Validate(body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, err.Error())
	}

	group, err := h.store.CreateGroup(c.Context(), sanitize.Text(body.Name), userID)
	if err != nil {
		return h.mapGroupError(c, err)
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, toGroupResponse(group))
}

// AddMember handles POST /api/v1/groups/:id/members.
func (h *GroupHandler) AddMember(c fiber.Ctx) error {
	groupID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, "Invalid group ID format")
	}

	var body struct {
		UserID uuid.UUID `json:"user_id" validate:"required"`
	}
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeInvalidBody, "Invalid request body")
	}
	if err := httputil.Validate(body); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, err.Error())
	}

	before := h.audienceSnapshot(c.Context(), groupID)

	if err := h.store.AddMember(c.Context(), groupID, body.UserID); err != nil {
		return h.mapGroupError(c, err)
	}
	h.notifyAudienceChange(c.Context(), before)

	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveMember handles DELETE /api/v1/groups/:id/members/:userID. A removed
// member can lose view access to every page the group holds a grant on, so
// every such page's audience is diffed and page_access_revoked is sent to
// whoever actually fell out of it.
func (h *GroupHandler) RemoveMember(c fiber.Ctx) error {
	groupID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, "Invalid group ID format")
	}

	targetID, err := uuid.Parse(c.Params("userID"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, httputil.CodeValidationError, "Invalid user ID format")
	}

	before := h.audienceSnapshot(c.Context(), groupID)

	if err := h.store.RemoveMember(c.Context(), groupID, targetID); err != nil {
		return h.mapGroupError(c, err)
	}
	h.notifyAudienceChange(c.Context(), before)

	return c.SendStatus(fiber.StatusNoContent)
}

// audienceSnapshot captures the current view-access audience of every page
// groupID holds a permission row on, keyed by page id. Returns nil if no
// broadcaster is wired or the page list can't be read — notifyAudienceChange
// treats a nil snapshot as "nothing to diff".
func (h *GroupHandler) audienceSnapshot(ctx context.Context, groupID uuid.UUID) map[uuid.UUID]map[uuid.UUID]struct{} {
	if h.broadcaster == nil {
		return nil
	}
	pageIDs, err := h.store.ListPagesWithGroupPermission(ctx, groupID)
	if err != nil {
		h.log.Warn().Err(err).Str("group_id", groupID.String()).Msg("list pages with group permission failed")
		return nil
	}

	snapshot := make(map[uuid.UUID]map[uuid.UUID]struct{}, len(pageIDs))
	for _, pageID := range pageIDs {
		audience, err := h.store.UsersWithViewAccess(ctx, pageID)
		if err != nil {
			h.log.Warn().Err(err).Str("page_id", pageID.String()).Msg("audience snapshot failed")
			continue
		}
		snapshot[pageID] = audience
	}
	return snapshot
}

// notifyAudienceChange recomputes each snapshotted page's audience after the
// membership mutation commits and broadcasts the diff. Best-effort: a failed
// re-read is logged and skipped rather than surfaced to the caller, since the
// membership mutation itself has already succeeded.
func (h *GroupHandler) notifyAudienceChange(ctx context.Context, before map[uuid.UUID]map[uuid.UUID]struct{}) {
	if h.broadcaster == nil || before == nil {
		return
	}
	for pageID, prev := range before {
		after, err := h.store.UsersWithViewAccess(ctx, pageID)
		if err != nil {
			h.log.Warn().Err(err).Str("page_id", pageID.String()).Msg("audience diff failed")
			continue
		}
		h.broadcaster.BroadcastAudienceDiff(ctx, pageID, prev, after)
	}
}

// List handles GET /api/v1/groups, returning the groups the caller is a member of.
func (h *GroupHandler) List(c fiber.Ctx) error {
	userID := auth.UserID(c)

	groups, err := h.store.ListGroups(c.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "group").Msg("list groups failed")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternalError, "An internal error occurred")
	}

	result := make([]groupResponse, len(groups))
	for i, g := range groups {
		result[i] = toGroupResponse(g)
	}
	return httputil.Success(c, result)
}

func (h *GroupHandler) mapGroupError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNameTaken):
		return httputil.Fail(c, fiber.StatusConflict, httputil.CodeConflict, err.Error())
	case errors.Is(err, store.ErrAlreadyMember):
		return httputil.Fail(c, fiber.StatusConflict, httputil.CodeConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, httputil.CodeNotFound, "Group or user not found")
	default:
		h.log.Error().Err(err).Str("handler", "group").Msg("unhandled group store error")
		return httputil.Fail(c, fiber.StatusInternalServerError, httputil.CodeInternalError, "An internal error occurred")
	}
}
