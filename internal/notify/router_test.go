package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nextslot/internal/events"
	"nextslot/internal/models"
)

type routerStore struct {
	mu      sync.Mutex
	tokens  map[string][]string
	prefs   map[string]*models.NotificationPreferences
	prefErr error
	records []DeliveryRecord
}

func newRouterStore() *routerStore {
	return &routerStore{
		tokens: make(map[string][]string),
		prefs:  make(map[string]*models.NotificationPreferences),
	}
}

func (s *routerStore) PushTokens(_ context.Context, ownerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens[ownerID]...), nil
}

func (s *routerStore) RemovePushTokens(_ context.Context, ownerID string, remove []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dead := make(map[string]struct{}, len(remove))
	for _, t := range remove {
		dead[t] = struct{}{}
	}
	var kept []string
	for _, t := range s.tokens[ownerID] {
		if _, gone := dead[t]; !gone {
			kept = append(kept, t)
		}
	}
	s.tokens[ownerID] = kept
	return nil
}

func (s *routerStore) GetPreferences(_ context.Context, ownerID string) (*models.NotificationPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefErr != nil {
		return nil, s.prefErr
	}
	return s.prefs[ownerID], nil
}

func (s *routerStore) LogDelivery(_ context.Context, rec DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *routerStore) recordsFor(channel string) []DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DeliveryRecord
	for _, r := range s.records {
		if r.Channel == channel {
			out = append(out, r)
		}
	}
	return out
}

type fakePusher struct {
	mu      sync.Mutex
	sends   []PushMessage
	invalid []string
	err     error
}

func (p *fakePusher) SendPush(_ context.Context, tokens []string, msg PushMessage) (PushResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return PushResult{}, p.err
	}
	p.sends = append(p.sends, msg)
	res := PushResult{InvalidTokens: p.invalid}
	res.SentCount = len(tokens) - len(p.invalid)
	res.FailedCount = len(p.invalid)
	return res, nil
}

func (p *fakePusher) sendCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sends)
}

type fakeEmailer struct {
	mu   sync.Mutex
	sent []string // "to|subject"
	err  error
}

func (e *fakeEmailer) SendEmail(_ context.Context, to, subject, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, to+"|"+subject)
	return nil
}

func (e *fakeEmailer) sendCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent)
}

func testRouter(store *routerStore, pusher *fakePusher, emailer *fakeEmailer) *Router {
	logger := zerolog.Nop()
	return NewRouter(store, pusher, emailer, &logger)
}

func testAppointment(status models.AppointmentStatus) models.Appointment {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return models.Appointment{
		ID:         "a1",
		ProviderID: "prov1",
		MemberID:   "m1",
		ClientID:   "client1",
		Status:     status,
		Start:      start,
		End:        start.Add(time.Hour),
		ClientContact: models.ClientContact{
			Name:  "Dana",
			Email: "dana@example.com",
		},
	}
}

func TestClassify_CreatedOccupying(t *testing.T) {
	deliveries := Classify(events.Created(testAppointment(models.StatusPending)))
	require.Len(t, deliveries, 1)
	assert.Equal(t, RecipientProvider, deliveries[0].Recipient.Kind)
	assert.Equal(t, "prov1", deliveries[0].Recipient.ID)
	assert.Equal(t, models.EventNewBooking, deliveries[0].Event)
}

func TestClassify_CreatedAsConfirmed(t *testing.T) {
	// Booking created directly in confirmed state: exactly one new-booking
	// notification to the provider, nothing to the client. The confirmed
	// notification only fires on a pending-to-confirmed transition.
	deliveries := Classify(events.Created(testAppointment(models.StatusConfirmed)))
	require.Len(t, deliveries, 1)
	assert.Equal(t, RecipientProvider, deliveries[0].Recipient.Kind)
	assert.Equal(t, models.EventNewBooking, deliveries[0].Event)
}

func TestClassify_CreatedCancelled(t *testing.T) {
	deliveries := Classify(events.Created(testAppointment(models.StatusCancelled)))
	assert.Empty(t, deliveries, "non-occupying creates notify nobody")
}

func TestClassify_Confirmed(t *testing.T) {
	before := testAppointment(models.StatusPending)
	after := testAppointment(models.StatusConfirmed)

	deliveries := Classify(events.Updated(before, after))
	require.Len(t, deliveries, 1)
	assert.Equal(t, RecipientClient, deliveries[0].Recipient.Kind)
	assert.Equal(t, "client1", deliveries[0].Recipient.ID)
	assert.Equal(t, models.EventConfirmed, deliveries[0].Event)
}

func TestClassify_CancelledByClient(t *testing.T) {
	before := testAppointment(models.StatusConfirmed)
	after := testAppointment(models.StatusCancelled)
	after.CancelledBy = models.CancelledByClient

	deliveries := Classify(events.Updated(before, after))
	require.Len(t, deliveries, 1)
	assert.Equal(t, RecipientProvider, deliveries[0].Recipient.Kind)
	assert.Equal(t, models.EventCancelledByClient, deliveries[0].Event)
}

func TestClassify_CancelledByProvider(t *testing.T) {
	before := testAppointment(models.StatusConfirmed)
	after := testAppointment(models.StatusCancelled)
	after.CancelledBy = models.CancelledByProvider

	deliveries := Classify(events.Updated(before, after))
	require.Len(t, deliveries, 1)
	assert.Equal(t, RecipientClient, deliveries[0].Recipient.Kind)
	assert.Equal(t, models.EventCancelledByProvider, deliveries[0].Event)
}

func TestClassify_Rescheduled(t *testing.T) {
	before := testAppointment(models.StatusConfirmed)
	after := before
	after.Start = before.Start.Add(2 * time.Hour)
	after.End = before.End.Add(2 * time.Hour)

	deliveries := Classify(events.Updated(before, after))
	require.Len(t, deliveries, 1)
	assert.Equal(t, RecipientClient, deliveries[0].Recipient.Kind)
	assert.Equal(t, models.EventRescheduled, deliveries[0].Event)
}

func TestClassify_UnrelatedEditAndDelete(t *testing.T) {
	before := testAppointment(models.StatusConfirmed)
	after := before
	after.ClientContact.Phone = "+1555"

	assert.Empty(t, Classify(events.Updated(before, after)))
	assert.Empty(t, Classify(events.Deleted(before)), "deletions are silent")
}

func TestDeliver_PushAndEmail(t *testing.T) {
	store := newRouterStore()
	store.tokens["client1"] = []string{"tok1", "tok2"}
	pusher := &fakePusher{}
	emailer := &fakeEmailer{}
	router := testRouter(store, pusher, emailer)

	appt := testAppointment(models.StatusConfirmed)
	router.Deliver(context.Background(), Delivery{
		Recipient:   Recipient{Kind: RecipientClient, ID: "client1"},
		Event:       models.EventConfirmed,
		Appointment: &appt,
	})

	assert.Equal(t, 1, pusher.sendCount())
	assert.Equal(t, 1, emailer.sendCount())
	assert.Len(t, store.recordsFor("push"), 1)
	assert.Len(t, store.recordsFor("email"), 1)
}

func TestDeliver_PolicyDenySuppressesPushNotEmail(t *testing.T) {
	store := newRouterStore()
	store.tokens["client1"] = []string{"tok1"}
	store.prefs["client1"] = &models.NotificationPreferences{
		OwnerID:     "client1",
		PushEnabled: true,
		Events:      map[models.NotificationEvent]bool{models.EventConfirmed: false},
	}
	pusher := &fakePusher{}
	emailer := &fakeEmailer{}
	router := testRouter(store, pusher, emailer)

	appt := testAppointment(models.StatusConfirmed)
	router.Deliver(context.Background(), Delivery{
		Recipient:   Recipient{Kind: RecipientClient, ID: "client1"},
		Event:       models.EventConfirmed,
		Appointment: &appt,
	})

	assert.Equal(t, 0, pusher.sendCount())
	assert.Equal(t, 1, emailer.sendCount(), "email ignores the push preference toggles")

	pushRecords := store.recordsFor("push")
	require.Len(t, pushRecords, 1)
	assert.Equal(t, "suppressed", pushRecords[0].Status)
}

func TestDeliver_PreferenceErrorFailsOpen(t *testing.T) {
	store := newRouterStore()
	store.tokens["client1"] = []string{"tok1"}
	store.prefErr = errors.New("preferences unavailable")
	pusher := &fakePusher{}
	emailer := &fakeEmailer{}
	router := testRouter(store, pusher, emailer)

	appt := testAppointment(models.StatusConfirmed)
	router.Deliver(context.Background(), Delivery{
		Recipient:   Recipient{Kind: RecipientClient, ID: "client1"},
		Event:       models.EventConfirmed,
		Appointment: &appt,
	})

	assert.Equal(t, 1, pusher.sendCount(), "a failed preference read never suppresses")
}

func TestDeliver_InvalidTokensPruned(t *testing.T) {
	store := newRouterStore()
	store.tokens["prov1"] = []string{"live", "dead1", "dead2"}
	pusher := &fakePusher{invalid: []string{"dead1", "dead2"}}
	emailer := &fakeEmailer{}
	router := testRouter(store, pusher, emailer)

	appt := testAppointment(models.StatusPending)
	router.Deliver(context.Background(), Delivery{
		Recipient:   Recipient{Kind: RecipientProvider, ID: "prov1"},
		Event:       models.EventNewBooking,
		Appointment: &appt,
	})

	tokens, err := store.PushTokens(context.Background(), "prov1")
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, tokens)
}

func TestDeliver_AllTokensFailedRecordsFailure(t *testing.T) {
	store := newRouterStore()
	store.tokens["prov1"] = []string{"dead1", "dead2"}
	pusher := &fakePusher{invalid: []string{"dead1", "dead2"}}
	emailer := &fakeEmailer{}
	router := testRouter(store, pusher, emailer)

	appt := testAppointment(models.StatusPending)
	router.Deliver(context.Background(), Delivery{
		Recipient:   Recipient{Kind: RecipientProvider, ID: "prov1"},
		Event:       models.EventNewBooking,
		Appointment: &appt,
	})

	pushRecords := store.recordsFor("push")
	require.Len(t, pushRecords, 1, "zero successful sends still leaves a trace")
	assert.Equal(t, "failed", pushRecords[0].Status)
	assert.Equal(t, "sent=0 failed=2", pushRecords[0].Detail)

	tokens, err := store.PushTokens(context.Background(), "prov1")
	require.NoError(t, err)
	assert.Empty(t, tokens, "the dead tokens are still pruned")
}

func TestDeliver_PushFailureStillEmails(t *testing.T) {
	store := newRouterStore()
	store.tokens["client1"] = []string{"tok1"}
	pusher := &fakePusher{err: errors.New("fcm unreachable")}
	emailer := &fakeEmailer{}
	router := testRouter(store, pusher, emailer)

	appt := testAppointment(models.StatusConfirmed)
	router.Deliver(context.Background(), Delivery{
		Recipient:   Recipient{Kind: RecipientClient, ID: "client1"},
		Event:       models.EventConfirmed,
		Appointment: &appt,
	})

	assert.Equal(t, 1, emailer.sendCount())
	pushRecords := store.recordsFor("push")
	require.Len(t, pushRecords, 1)
	assert.Equal(t, "failed", pushRecords[0].Status)
}

func TestDeliver_GuestBookingSkipsPush(t *testing.T) {
	store := newRouterStore()
	pusher := &fakePusher{}
	emailer := &fakeEmailer{}
	router := testRouter(store, pusher, emailer)

	appt := testAppointment(models.StatusConfirmed)
	appt.ClientID = ""
	router.Deliver(context.Background(), Delivery{
		Recipient:   Recipient{Kind: RecipientClient, ID: ""},
		Event:       models.EventConfirmed,
		Appointment: &appt,
	})

	assert.Equal(t, 0, pusher.sendCount())
	assert.Equal(t, 1, emailer.sendCount(), "guests still get the email")
}

func TestDeliver_ProviderNeverEmailed(t *testing.T) {
	store := newRouterStore()
	store.tokens["prov1"] = []string{"tok1"}
	pusher := &fakePusher{}
	emailer := &fakeEmailer{}
	router := testRouter(store, pusher, emailer)

	appt := testAppointment(models.StatusPending)
	router.Deliver(context.Background(), Delivery{
		Recipient:   Recipient{Kind: RecipientProvider, ID: "prov1"},
		Event:       models.EventNewBooking,
		Appointment: &appt,
	})

	assert.Equal(t, 1, pusher.sendCount())
	assert.Equal(t, 0, emailer.sendCount())
}

func TestHandle_EndToEnd(t *testing.T) {
	store := newRouterStore()
	store.tokens["prov1"] = []string{"tok1"}
	pusher := &fakePusher{}
	emailer := &fakeEmailer{}
	router := testRouter(store, pusher, emailer)

	router.Handle(events.Created(testAppointment(models.StatusConfirmed)))

	assert.Equal(t, 1, pusher.sendCount(), "exactly one provider notification")
	assert.Equal(t, 0, emailer.sendCount())
}
