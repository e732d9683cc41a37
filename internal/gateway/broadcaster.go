package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jmougeot/alarm-server/internal/store"
)

// Publisher fans a broadcast out to other processes of the same gateway, so
// that a session connected to one instance still receives events committed on
// another. Optional: a nil Publisher makes the Broadcaster single-process only.
type Publisher interface {
	Publish(ctx context.Context, pageID uuid.UUID, frameType string, payload []byte) error
}

// Broadcaster is C5: it turns a committed mutation into frames delivered to
// every session whose user currently has view access to the affected page.
// It never blocks on a slow session — delivery goes through Session.Enqueue,
// which is itself non-blocking.
type Broadcaster struct {
	store     store.Store
	registry  *SessionRegistry
	publisher Publisher
	log       zerolog.Logger
}

// NewBroadcaster wires a Broadcaster to the Store it reads audiences from and
// the SessionRegistry it delivers to. publisher may be nil.
func NewBroadcaster(st store.Store, registry *SessionRegistry, publisher Publisher, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		store:     st,
		registry:  registry,
		publisher: publisher,
		log:       logger.With().Str("component", "broadcaster").Logger(),
	}
}

// BroadcastAlarmUpdate delivers an alarm_update frame to every session whose
// user currently has view access to pageID. The audience is recomputed from
// the Store on every call — never cached — so a permission change between two
// broadcasts is reflected immediately.
func (b *Broadcaster) BroadcastAlarmUpdate(ctx context.Context, pageID uuid.UUID, action string, data any) {
	audience, err := b.store.UsersWithViewAccess(ctx, pageID)
	if err != nil {
		b.log.Error().Err(err).Str("page_id", pageID.String()).Msg("failed to resolve audience for broadcast")
		return
	}

	frame := mustFrame(TypeAlarmUpdate, AlarmUpdatePayload{
		PageID: pageID.String(),
		Action: action,
		Data:   data,
	})

	b.deliver(audience, frame)
	b.publish(ctx, pageID, TypeAlarmUpdate, frame)
}

// BroadcastAudienceDiff compares a page's view-access audience before and
// after a share/unshare mutation and notifies only the users whose standing
// actually changed: page_access_granted to newcomers (with a fresh snapshot of
// the page and its alarms so they don't need to separately request it) and
// page_access_revoked to everyone who lost access.
func (b *Broadcaster) BroadcastAudienceDiff(ctx context.Context, pageID uuid.UUID, before, after map[uuid.UUID]struct{}) {
	var gained, lost []uuid.UUID
	for userID := range after {
		if _, ok := before[userID]; !ok {
			gained = append(gained, userID)
		}
	}
	for userID := range before {
		if _, ok := after[userID]; !ok {
			lost = append(lost, userID)
		}
	}

	if len(lost) > 0 {
		revoked := mustFrame(TypePageAccessRevoked, PageAccessRevokedPayload{PageID: pageID.String()})
		b.deliver(toSet(lost), revoked)
	}

	if len(gained) == 0 {
		return
	}

	page, err := b.store.GetPage(ctx, pageID)
	if err != nil {
		b.log.Error().Err(err).Str("page_id", pageID.String()).Msg("failed to load page for access-granted notification")
		return
	}
	alarms, err := b.store.ListAlarmsInPages(ctx, []uuid.UUID{pageID})
	if err != nil {
		b.log.Error().Err(err).Str("page_id", pageID.String()).Msg("failed to load alarms for access-granted notification")
		return
	}

	alarmData := make([]any, 0, len(alarms))
	for _, a := range alarms {
		alarmData = append(alarmData, alarmToMap(a))
	}

	granted := mustFrame(TypePageAccessGranted, PageAccessGrantedPayload{
		Page: map[string]any{
			"id":         page.ID,
			"name":       page.Name,
			"owner_id":   page.OwnerID,
			"created_at": page.CreatedAt,
		},
		Alarms: alarmData,
	})
	b.deliver(toSet(gained), granted)
}

func (b *Broadcaster) deliver(userIDs map[uuid.UUID]struct{}, frame []byte) {
	for _, session := range b.registry.SessionsFor(userIDs) {
		session.Enqueue(frame)
	}
}

func (b *Broadcaster) publish(ctx context.Context, pageID uuid.UUID, frameType string, frame []byte) {
	if b.publisher == nil {
		return
	}
	if err := b.publisher.Publish(ctx, pageID, frameType, frame); err != nil {
		b.log.Warn().Err(err).Msg("cross-process publish failed")
	}
}

func toSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
