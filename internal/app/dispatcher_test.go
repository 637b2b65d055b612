package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"finance_notification_service/internal/domain/delivery"
	"finance_notification_service/internal/domain/notification"
	"finance_notification_service/internal/domain/recipient"
	idb "finance_notification_service/internal/infra/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotificationRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*notification.Notification
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{items: make(map[int64]*notification.Notification)}
}

func (r *fakeNotificationRepo) Create(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	n.ID = r.nextID
	n.CreatedAt = time.Now().UTC()
	copied := *n
	r.items[n.ID] = &copied
	return nil
}

func (r *fakeNotificationRepo) GetByID(_ context.Context, id int64) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return nil, idb.ErrNotificationNotFound
	}
	copied := *n
	return &copied, nil
}

func (r *fakeNotificationRepo) ListByOwner(_ context.Context, ownerID int64, _ int) ([]*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*notification.Notification
	for _, n := range r.items {
		if n.OwnerID == ownerID {
			copied := *n
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) UpdateStatus(_ context.Context, id int64, status notification.Status, readAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return idb.ErrNotificationNotFound
	}
	n.Status = status
	if !readAt.IsZero() {
		n.ReadAt = sql.NullTime{Time: readAt, Valid: true}
	}
	return nil
}

type fakePreferenceRepo struct {
	mu    sync.Mutex
	prefs map[string]*notification.Preference
}

func newFakePreferenceRepo() *fakePreferenceRepo {
	return &fakePreferenceRepo{prefs: make(map[string]*notification.Preference)}
}

func prefKey(ownerID int64, typ notification.Type) string {
	return fmt.Sprintf("%d/%s", ownerID, typ)
}

func (r *fakePreferenceRepo) Get(_ context.Context, ownerID int64, typ notification.Type) (*notification.Preference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.prefs[prefKey(ownerID, typ)]
	if !ok {
		return nil, idb.ErrPreferenceNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePreferenceRepo) Upsert(_ context.Context, p *notification.Preference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.prefs[prefKey(p.OwnerID, p.Type)] = &copied
	return nil
}

type fakeRecipientRepo struct {
	recipients map[int64]*recipient.Recipient
}

func (r *fakeRecipientRepo) GetByID(_ context.Context, id int64) (*recipient.Recipient, error) {
	rcpt, ok := r.recipients[id]
	if !ok {
		return nil, idb.ErrRecipientNotFound
	}
	return rcpt, nil
}

type fakeDeviceRepo struct {
	mu      sync.Mutex
	devices []*recipient.Device
}

func (r *fakeDeviceRepo) Register(_ context.Context, d *recipient.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.IsActive = true
	r.devices = append(r.devices, d)
	return nil
}

func (r *fakeDeviceRepo) Unregister(_ context.Context, recipientID int64, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.RecipientID == recipientID && d.Token == token {
			d.IsActive = false
		}
	}
	return nil
}

func (r *fakeDeviceRepo) ListActive(_ context.Context, recipientID int64) ([]*recipient.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*recipient.Device
	for _, d := range r.devices {
		if d.RecipientID == recipientID && d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDeviceRepo) Deactivate(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.Token == token {
			d.IsActive = false
		}
	}
	return nil
}

func (r *fakeDeviceRepo) activeTokens(recipientID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, d := range r.devices {
		if d.RecipientID == recipientID && d.IsActive {
			out = append(out, d.Token)
		}
	}
	return out
}

type fakeEmailSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *fakeEmailSender) Send(_ context.Context, to, _, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to)
	return nil
}

func (s *fakeEmailSender) sentTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type fakePushSender struct {
	mu      sync.Mutex
	batches [][]string
	results []delivery.PushResult
}

func (s *fakePushSender) Send(_ context.Context, tokens []string, _, _ string, _ map[string]string) ([]delivery.PushResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]string(nil), tokens...))
	return s.results, nil
}

func (s *fakePushSender) sentBatches() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.batches...)
}

type fakeTelegramSender struct {
	mu    sync.Mutex
	chats []int64
}

func (s *fakeTelegramSender) SendMessage(chatID int64, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append(s.chats, chatID)
	return nil
}

type dispatcherFixture struct {
	notifications *fakeNotificationRepo
	preferences   *fakePreferenceRepo
	recipients    *fakeRecipientRepo
	devices       *fakeDeviceRepo
	live          *fakeBroadcaster
	email         *fakeEmailSender
	push          *fakePushSender
	telegram      *fakeTelegramSender
	dispatcher    *Dispatcher
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		notifications: newFakeNotificationRepo(),
		preferences:   newFakePreferenceRepo(),
		recipients: &fakeRecipientRepo{recipients: map[int64]*recipient.Recipient{
			1: {
				ID:             1,
				Email:          sql.NullString{String: "owner@example.com", Valid: true},
				TelegramChatID: sql.NullInt64{Int64: 4242, Valid: true},
				IsActive:       true,
			},
		}},
		devices:  &fakeDeviceRepo{},
		live:     &fakeBroadcaster{},
		email:    &fakeEmailSender{},
		push:     &fakePushSender{},
		telegram: &fakeTelegramSender{},
	}
	f.dispatcher = NewDispatcher(
		f.notifications, f.preferences, f.recipients, f.devices,
		f.live, f.email, f.push, f.telegram,
		testLogger(), time.Second,
	)
	return f
}

func baseAnnouncement(priority notification.Priority) Announcement {
	return Announcement{
		OwnerID:  1,
		Type:     notification.TypeRecurringTransaction,
		Priority: priority,
		Title:    "Recurring expense posted",
		Message:  "A recurring expense of 100.00 (rent) was added to your ledger.",
	}
}

func TestDispatcher_Announce_DefaultPreferenceFansOut(t *testing.T) {
	f := newDispatcherFixture()
	require.NoError(t, f.devices.Register(context.Background(), &recipient.Device{RecipientID: 1, Token: "tok-1"}))

	n, err := f.dispatcher.Announce(context.Background(), baseAnnouncement(notification.PriorityMedium))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.NotZero(t, n.ID)
	assert.Equal(t, notification.StatusUnread, n.Status)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", n.DeliveryKey.String())

	// Defaults enable in-app, email, and push; telegram stays opt-in.
	assert.Equal(t, []string{"notification"}, f.live.types())
	assert.Equal(t, []string{"owner@example.com"}, f.email.sentTo())
	require.Len(t, f.push.sentBatches(), 1)
	assert.Equal(t, []string{"tok-1"}, f.push.sentBatches()[0])
	assert.Empty(t, f.telegram.chats)
}

func TestDispatcher_Announce_BelowMinimumPriorityPersistsOnly(t *testing.T) {
	f := newDispatcherFixture()
	require.NoError(t, f.preferences.Upsert(context.Background(), &notification.Preference{
		OwnerID:      1,
		Type:         notification.TypeRecurringTransaction,
		InAppEnabled: true,
		EmailEnabled: true,
		MinPriority:  notification.PriorityMedium,
	}))

	n, err := f.dispatcher.Announce(context.Background(), baseAnnouncement(notification.PriorityLow))
	require.NoError(t, err)
	assert.NotZero(t, n.ID, "the record must persist even when no channel fires")

	assert.Empty(t, f.live.types())
	assert.Empty(t, f.email.sentTo())
	assert.Empty(t, f.push.sentBatches())

	// Raising the priority to the threshold fires the enabled channels.
	n, err = f.dispatcher.Announce(context.Background(), baseAnnouncement(notification.PriorityMedium))
	require.NoError(t, err)
	assert.NotZero(t, n.ID)
	assert.Equal(t, []string{"notification"}, f.live.types())
	assert.Equal(t, []string{"owner@example.com"}, f.email.sentTo())
	assert.Empty(t, f.push.sentBatches(), "push is disabled in the stored preference")
}

func TestDispatcher_Announce_TelegramOptIn(t *testing.T) {
	f := newDispatcherFixture()
	require.NoError(t, f.preferences.Upsert(context.Background(), &notification.Preference{
		OwnerID:         1,
		Type:            notification.TypeRecurringTransaction,
		TelegramEnabled: true,
		MinPriority:     notification.PriorityLow,
	}))

	_, err := f.dispatcher.Announce(context.Background(), baseAnnouncement(notification.PriorityMedium))
	require.NoError(t, err)
	assert.Equal(t, []int64{4242}, f.telegram.chats)
	assert.Empty(t, f.email.sentTo())
}

func TestDispatcher_Announce_ChannelFailureIsolated(t *testing.T) {
	f := newDispatcherFixture()
	f.email.err = fmt.Errorf("smtp down")

	n, err := f.dispatcher.Announce(context.Background(), baseAnnouncement(notification.PriorityHigh))
	require.NoError(t, err, "a failed channel must not fail the announcement")
	assert.NotZero(t, n.ID)
	assert.Equal(t, []string{"notification"}, f.live.types(), "other channels still deliver")
}

func TestDispatcher_Announce_DeactivatesRejectedPushTokens(t *testing.T) {
	f := newDispatcherFixture()
	require.NoError(t, f.devices.Register(context.Background(), &recipient.Device{RecipientID: 1, Token: "tok-good"}))
	require.NoError(t, f.devices.Register(context.Background(), &recipient.Device{RecipientID: 1, Token: "tok-stale"}))
	f.push.results = []delivery.PushResult{
		{Token: "tok-good"},
		{Token: "tok-stale", Invalid: true, Err: fmt.Errorf("push gateway error: NotRegistered")},
	}

	_, err := f.dispatcher.Announce(context.Background(), baseAnnouncement(notification.PriorityMedium))
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-good"}, f.devices.activeTokens(1))
}

func TestDispatcher_Announce_MissingRecipientSkipsContactChannels(t *testing.T) {
	f := newDispatcherFixture()

	ann := baseAnnouncement(notification.PriorityMedium)
	ann.OwnerID = 99

	n, err := f.dispatcher.Announce(context.Background(), ann)
	require.NoError(t, err)
	assert.NotZero(t, n.ID)
	assert.Empty(t, f.email.sentTo())
	assert.Equal(t, []string{"notification"}, f.live.types(), "in-app needs no contact record")
}

func TestDispatcher_ListForOwner_ArchivesExpired(t *testing.T) {
	f := newDispatcherFixture()

	fresh, err := f.dispatcher.Announce(context.Background(), baseAnnouncement(notification.PriorityMedium))
	require.NoError(t, err)

	stale := baseAnnouncement(notification.PriorityMedium)
	stale.ExpiresAt = sql.NullTime{Time: time.Now().UTC().Add(-time.Hour), Valid: true}
	expired, err := f.dispatcher.Announce(context.Background(), stale)
	require.NoError(t, err)

	items, err := f.dispatcher.ListForOwner(context.Background(), 1, 50)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byID := map[int64]*notification.Notification{}
	for _, n := range items {
		byID[n.ID] = n
	}
	assert.Equal(t, notification.StatusUnread, byID[fresh.ID].Status)
	assert.Equal(t, notification.StatusArchived, byID[expired.ID].Status)

	stored, err := f.notifications.GetByID(context.Background(), expired.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusArchived, stored.Status, "archival is written back, not just decorated")
}

func TestDispatcher_MarkRead(t *testing.T) {
	f := newDispatcherFixture()
	n, err := f.dispatcher.Announce(context.Background(), baseAnnouncement(notification.PriorityMedium))
	require.NoError(t, err)

	require.NoError(t, f.dispatcher.MarkRead(context.Background(), n.ID, 1))
	stored, err := f.notifications.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusRead, stored.Status)
	assert.True(t, stored.ReadAt.Valid)

	// Marking read again is a no-op.
	require.NoError(t, f.dispatcher.MarkRead(context.Background(), n.ID, 1))

	err = f.dispatcher.MarkRead(context.Background(), n.ID, 2)
	assert.ErrorIs(t, err, ErrNotificationNotOwned)
}

func TestDispatcher_MarkRead_ExpiredArchivesInstead(t *testing.T) {
	f := newDispatcherFixture()
	ann := baseAnnouncement(notification.PriorityMedium)
	ann.ExpiresAt = sql.NullTime{Time: time.Now().UTC().Add(-time.Minute), Valid: true}
	n, err := f.dispatcher.Announce(context.Background(), ann)
	require.NoError(t, err)

	require.NoError(t, f.dispatcher.MarkRead(context.Background(), n.ID, 1))
	stored, err := f.notifications.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusArchived, stored.Status)
	assert.False(t, stored.ReadAt.Valid)
}

func TestDispatcher_Archive(t *testing.T) {
	f := newDispatcherFixture()
	n, err := f.dispatcher.Announce(context.Background(), baseAnnouncement(notification.PriorityMedium))
	require.NoError(t, err)

	require.NoError(t, f.dispatcher.Archive(context.Background(), n.ID, 1))
	stored, err := f.notifications.GetByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusArchived, stored.Status)

	assert.ErrorIs(t, f.dispatcher.Archive(context.Background(), n.ID, 2), ErrNotificationNotOwned)
}
