package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jmougeot/alarm-server/internal/authz"
	"github.com/jmougeot/alarm-server/internal/authzcache"
	"github.com/jmougeot/alarm-server/internal/sanitize"
	"github.com/jmougeot/alarm-server/internal/store"
)

// Dispatcher is the CommandDispatcher: it parses inbound frames, re-resolves
// authorization against the freshest Store reads, performs the mutation, and
// hands the result to the Broadcaster. Dispatch switches on the frame's type
// string and each handler decodes the raw payload into its own request struct;
// there is no single typed command value, and an unrecognised type string
// reaches the switch's default case, which answers with an error frame.
type Dispatcher struct {
	store       store.Store
	broadcaster *Broadcaster
	verdicts    *authzcache.Cache
	log         zerolog.Logger
}

// NewDispatcher wires a Dispatcher to its Store and Broadcaster. verdicts may
// be nil, in which case share_page/unshare_page never bother invalidating a
// cache that was never populated.
func NewDispatcher(st store.Store, broadcaster *Broadcaster, verdicts *authzcache.Cache, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: st, broadcaster: broadcaster, verdicts: verdicts, log: logger.With().Str("component", "dispatcher").Logger()}
}

func (d *Dispatcher) invalidateAccessCache(ctx context.Context, pageID uuid.UUID) {
	if d.verdicts == nil {
		return
	}
	if err := d.verdicts.InvalidatePage(ctx, pageID); err != nil {
		d.log.Warn().Err(err).Str("page_id", pageID.String()).Msg("invalidate cached verdicts failed")
	}
}

// Dispatch parses the envelope and routes by type. Malformed input and unknown
// types emit an error frame to the initiator; the session stays open.
func (d *Dispatcher) Dispatch(session *Session, frame Frame) {
	ctx := context.Background()
	userID := session.UserID()

	switch frame.Type {
	case TypeCreateAlarm:
		d.createAlarm(ctx, session, userID, frame.Payload)
	case TypeUpdateAlarm:
		d.updateAlarm(ctx, session, userID, frame.Payload)
	case TypeDeleteAlarm:
		d.deleteAlarm(ctx, session, userID, frame.Payload)
	case TypeTriggerAlarm:
		d.triggerAlarm(ctx, session, userID, frame.Payload)
	case TypeCreatePage:
		d.createPage(ctx, session, userID, frame.Payload)
	case TypeSharePage:
		d.sharePage(ctx, session, userID, frame.Payload)
	case TypeUnsharePage:
		d.unsharePage(ctx, session, userID, frame.Payload)
	default:
		session.Enqueue(mustFrame(TypeError, ErrorPayload{Message: "unknown command type"}))
	}
}

func fail(session *Session, message string) {
	session.Enqueue(mustFrame(TypeError, ErrorPayload{Message: message}))
}

// resolveVerdict fetches a page and the freshest permission rows and returns
// the caller's effective verdict on it. There is no caching anywhere in this
// path: every command re-fetches from the Store.
func (d *Dispatcher) resolveVerdict(ctx context.Context, userID, pageID uuid.UUID) (store.Page, authz.Verdict, error) {
	page, err := d.store.GetPage(ctx, pageID)
	if err != nil {
		return store.Page{}, authz.Verdict{}, err
	}
	groupIDs, err := d.store.ListGroupsOfUser(ctx, userID)
	if err != nil {
		return store.Page{}, authz.Verdict{}, err
	}
	rows, err := d.store.ListPermissions(ctx, pageID)
	if err != nil {
		return store.Page{}, authz.Verdict{}, err
	}
	return page, authz.Resolve(userID, page, authz.GroupSet(groupIDs), rows), nil
}

// sanitizePtr applies sanitize.Text to a patch field that may be absent.
func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	cleaned := sanitize.Text(*s)
	return &cleaned
}

func alarmToMap(a store.Alarm) map[string]any {
	m := map[string]any{
		"id":         a.ID,
		"page_id":    a.PageID,
		"ticker":     a.Ticker,
		"option":     a.Option,
		"condition":  a.Condition,
		"created_by": a.CreatedBy,
		"active":     a.Active,
		"created_at": a.CreatedAt,
	}
	if a.LastTriggered != nil {
		m["last_triggered"] = *a.LastTriggered
	}
	return m
}

// createAlarm implements "create_alarm {page_id, ticker, option, condition}":
// requires edit on the page.
func (d *Dispatcher) createAlarm(ctx context.Context, session *Session, userID uuid.UUID, payload json.RawMessage) {
	var body struct {
		PageID    uuid.UUID `json:"page_id"`
		Ticker    string    `json:"ticker"`
		Option    string    `json:"option"`
		Condition string    `json:"condition"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		fail(session, "malformed create_alarm payload")
		return
	}

	_, verdict, err := d.resolveVerdict(ctx, userID, body.PageID)
	if handleLookupErr(session, d.log, err) {
		return
	}
	if !verdict.Edit {
		fail(session, "permission denied")
		return
	}

	alarm, err := d.store.CreateAlarm(ctx, body.PageID,
		sanitize.Text(body.Ticker), sanitize.Text(body.Option), sanitize.Text(body.Condition), userID)
	if err != nil {
		d.internalError(session, "create alarm", err)
		return
	}

	d.broadcaster.BroadcastAlarmUpdate(ctx, alarm.PageID, "created", alarmToMap(alarm))
}

// updateAlarm implements "update_alarm {alarm_id, <partial fields>}": requires
// edit on the alarm's page. Only the supplied fields change.
func (d *Dispatcher) updateAlarm(ctx context.Context, session *Session, userID uuid.UUID, payload json.RawMessage) {
	var body struct {
		AlarmID   uuid.UUID `json:"alarm_id"`
		Ticker    *string   `json:"ticker"`
		Option    *string   `json:"option"`
		Condition *string   `json:"condition"`
		Active    *bool     `json:"active"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		fail(session, "malformed update_alarm payload")
		return
	}

	existing, err := d.store.GetAlarm(ctx, body.AlarmID)
	if handleLookupErr(session, d.log, err) {
		return
	}

	_, verdict, err := d.resolveVerdict(ctx, userID, existing.PageID)
	if handleLookupErr(session, d.log, err) {
		return
	}
	if !verdict.Edit {
		fail(session, "permission denied")
		return
	}

	alarm, err := d.store.UpdateAlarm(ctx, body.AlarmID, store.AlarmPatch{
		Ticker:    sanitizePtr(body.Ticker),
		Option:    sanitizePtr(body.Option),
		Condition: sanitizePtr(body.Condition),
		Active:    body.Active,
	})
	if err != nil {
		d.internalError(session, "update alarm", err)
		return
	}

	d.broadcaster.BroadcastAlarmUpdate(ctx, alarm.PageID, "updated", alarmToMap(alarm))
}

// deleteAlarm implements "delete_alarm {alarm_id}": requires edit.
func (d *Dispatcher) deleteAlarm(ctx context.Context, session *Session, userID uuid.UUID, payload json.RawMessage) {
	var body struct {
		AlarmID uuid.UUID `json:"alarm_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		fail(session, "malformed delete_alarm payload")
		return
	}

	existing, err := d.store.GetAlarm(ctx, body.AlarmID)
	if handleLookupErr(session, d.log, err) {
		return
	}

	_, verdict, err := d.resolveVerdict(ctx, userID, existing.PageID)
	if handleLookupErr(session, d.log, err) {
		return
	}
	if !verdict.Edit {
		fail(session, "permission denied")
		return
	}

	pageID, err := d.store.DeleteAlarm(ctx, body.AlarmID)
	if err != nil {
		d.internalError(session, "delete alarm", err)
		return
	}

	d.broadcaster.BroadcastAlarmUpdate(ctx, pageID, "deleted", map[string]any{
		"id":      body.AlarmID,
		"page_id": pageID,
	})
}

// triggerAlarm implements "trigger_alarm {alarm_id, price?}": requires view
// only — the client observing the condition need not be an editor. Non-
// idempotent: every call appends a new alarm_event.
func (d *Dispatcher) triggerAlarm(ctx context.Context, session *Session, userID uuid.UUID, payload json.RawMessage) {
	var body struct {
		AlarmID uuid.UUID `json:"alarm_id"`
		Price   *float64  `json:"price"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		fail(session, "malformed trigger_alarm payload")
		return
	}

	existing, err := d.store.GetAlarm(ctx, body.AlarmID)
	if handleLookupErr(session, d.log, err) {
		return
	}

	_, verdict, err := d.resolveVerdict(ctx, userID, existing.PageID)
	if handleLookupErr(session, d.log, err) {
		return
	}
	if !verdict.View {
		fail(session, "permission denied")
		return
	}

	alarm, _, err := d.store.TriggerAlarm(ctx, body.AlarmID, userID, body.Price)
	if err != nil {
		d.internalError(session, "trigger alarm", err)
		return
	}

	data := alarmToMap(alarm)
	data["price"] = body.Price
	data["triggered_by"] = userID
	d.broadcaster.BroadcastAlarmUpdate(ctx, alarm.PageID, "triggered", data)
}

// createPage implements "create_page {name}": any authenticated user may
// create a page; no permission check. The caller becomes owner and receives a
// success frame; no one else has access yet so there is no broadcast.
func (d *Dispatcher) createPage(ctx context.Context, session *Session, userID uuid.UUID, payload json.RawMessage) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		fail(session, "malformed create_page payload")
		return
	}

	page, err := d.store.CreatePage(ctx, sanitize.Text(body.Name), userID)
	if err != nil {
		d.internalError(session, "create page", err)
		return
	}

	session.Enqueue(mustFrame(TypeSuccess, SuccessPayload{
		Action: "page_created",
		Data: map[string]any{
			"id":         page.ID,
			"name":       page.Name,
			"owner_id":   page.OwnerID,
			"created_at": page.CreatedAt,
		},
	}))
}

// sharePage implements "share_page {page_id, subject_type, subject_id,
// can_view, can_edit}": requires share (owner only). After commit, the
// dispatcher diffs the page's audience before and after and notifies only the
// users whose standing actually changed.
func (d *Dispatcher) sharePage(ctx context.Context, session *Session, userID uuid.UUID, payload json.RawMessage) {
	var body struct {
		PageID      uuid.UUID        `json:"page_id"`
		SubjectType store.SubjectType `json:"subject_type"`
		SubjectID   uuid.UUID        `json:"subject_id"`
		CanView     bool             `json:"can_view"`
		CanEdit     bool             `json:"can_edit"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		fail(session, "malformed share_page payload")
		return
	}

	_, verdict, err := d.resolveVerdict(ctx, userID, body.PageID)
	if handleLookupErr(session, d.log, err) {
		return
	}
	if !verdict.Share {
		fail(session, "permission denied")
		return
	}

	before, err := d.store.UsersWithViewAccess(ctx, body.PageID)
	if err != nil {
		d.internalError(session, "share page", err)
		return
	}

	subject := store.Subject{Type: body.SubjectType, ID: body.SubjectID}
	if err := d.store.UpsertPermission(ctx, body.PageID, subject, body.CanView, body.CanEdit); err != nil {
		if errors.Is(err, store.ErrInvalidSubject) {
			fail(session, "cannot grant permission to the page owner")
			return
		}
		d.internalError(session, "share page", err)
		return
	}

	after, err := d.store.UsersWithViewAccess(ctx, body.PageID)
	if err != nil {
		d.internalError(session, "share page", err)
		return
	}

	d.invalidateAccessCache(ctx, body.PageID)
	session.Enqueue(mustFrame(TypeSuccess, SuccessPayload{Action: "page_shared"}))
	d.broadcaster.BroadcastAudienceDiff(ctx, body.PageID, before, after)
}

// unsharePage implements "unshare_page {page_id, subject_type, subject_id}":
// requires share. Diff procedure identical to sharePage.
func (d *Dispatcher) unsharePage(ctx context.Context, session *Session, userID uuid.UUID, payload json.RawMessage) {
	var body struct {
		PageID      uuid.UUID        `json:"page_id"`
		SubjectType store.SubjectType `json:"subject_type"`
		SubjectID   uuid.UUID        `json:"subject_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		fail(session, "malformed unshare_page payload")
		return
	}

	_, verdict, err := d.resolveVerdict(ctx, userID, body.PageID)
	if handleLookupErr(session, d.log, err) {
		return
	}
	if !verdict.Share {
		fail(session, "permission denied")
		return
	}

	before, err := d.store.UsersWithViewAccess(ctx, body.PageID)
	if err != nil {
		d.internalError(session, "unshare page", err)
		return
	}

	subject := store.Subject{Type: body.SubjectType, ID: body.SubjectID}
	if err := d.store.DeletePermission(ctx, body.PageID, subject); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(session, "permission not found")
			return
		}
		d.internalError(session, "unshare page", err)
		return
	}

	after, err := d.store.UsersWithViewAccess(ctx, body.PageID)
	if err != nil {
		d.internalError(session, "unshare page", err)
		return
	}

	d.invalidateAccessCache(ctx, body.PageID)
	session.Enqueue(mustFrame(TypeSuccess, SuccessPayload{Action: "page_unshared"}))
	d.broadcaster.BroadcastAudienceDiff(ctx, body.PageID, before, after)
}

// handleLookupErr reports a NotFound as a business error frame and an internal
// error as a logged generic failure. Returns true if the caller should stop.
func handleLookupErr(session *Session, log zerolog.Logger, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, store.ErrNotFound) {
		fail(session, "not found")
		return true
	}
	log.Error().Err(err).Msg("store lookup failed")
	fail(session, "an internal error occurred")
	return true
}

func (d *Dispatcher) internalError(session *Session, op string, err error) {
	d.log.Error().Err(err).Str("op", op).Msg("command failed")
	fail(session, "an internal error occurred")
}
