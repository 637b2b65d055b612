package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finance_notification_service/internal/domain/delivery"
	"finance_notification_service/internal/domain/notification"
	"finance_notification_service/internal/domain/recipient"
	idb "finance_notification_service/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrNotificationNotOwned = fmt.Errorf("notification does not belong to this owner")

// sendFunc delivers one notification over one channel. The recipient
// may be nil when the contact record could not be loaded; senders that
// need contact details treat that as nothing-to-send.
type sendFunc func(ctx context.Context, rcpt *recipient.Recipient, n *notification.Notification) error

// Dispatcher persists notifications and fans them out across channels
// according to the owner's preferences. Channel kinds map to sender
// functions in a closed table, so wiring a new channel is a table
// entry, not another branch.
type Dispatcher struct {
	notifications notification.Repository
	preferences   notification.PreferenceRepository
	recipients    recipient.Repository
	devices       recipient.DeviceRepository
	live          delivery.InAppSender
	email         delivery.EmailSender
	push          delivery.PushSender
	telegram      delivery.TelegramSender
	senders       map[notification.Channel]sendFunc
	logger        *logrus.Logger
	sendTimeout   time.Duration
}

func NewDispatcher(
	notifications notification.Repository,
	preferences notification.PreferenceRepository,
	recipients recipient.Repository,
	devices recipient.DeviceRepository,
	live delivery.InAppSender,
	email delivery.EmailSender,
	push delivery.PushSender,
	telegram delivery.TelegramSender,
	logger *logrus.Logger,
	sendTimeout time.Duration,
) *Dispatcher {
	d := &Dispatcher{
		notifications: notifications,
		preferences:   preferences,
		recipients:    recipients,
		devices:       devices,
		live:          live,
		email:         email,
		push:          push,
		telegram:      telegram,
		logger:        logger,
		sendTimeout:   sendTimeout,
	}

	d.senders = map[notification.Channel]sendFunc{}
	if live != nil {
		d.senders[notification.ChannelInApp] = d.sendInApp
	}
	if email != nil {
		d.senders[notification.ChannelEmail] = d.sendEmail
	}
	if push != nil {
		d.senders[notification.ChannelPush] = d.sendPush
	}
	if telegram != nil {
		d.senders[notification.ChannelTelegram] = d.sendTelegram
	}
	return d
}

// Announce persists the notification and, when its priority passes the
// owner's preference gate, delivers it over every enabled channel.
// The record is created unconditionally so it stays queryable even
// when no channel fires. Channel failures are logged and isolated;
// they never surface to the caller.
func (d *Dispatcher) Announce(ctx context.Context, a Announcement) (*notification.Notification, error) {
	n := &notification.Notification{
		OwnerID:     a.OwnerID,
		DeliveryKey: uuid.New(),
		Type:        a.Type,
		Priority:    a.Priority,
		Status:      notification.StatusUnread,
		Title:       a.Title,
		Message:     a.Message,
		Payload:     a.Payload,
		ExpiresAt:   a.ExpiresAt,
	}
	if err := d.notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("persisting notification: %w", err)
	}

	pref := d.preferenceFor(ctx, a.OwnerID, a.Type)
	if !pref.Allows(a.Priority) {
		d.logger.WithFields(logrus.Fields{
			"notification_id": n.ID,
			"priority":        a.Priority,
			"min_priority":    pref.MinPriority,
		}).Debug("notification below minimum priority; persisted without delivery")
		return n, nil
	}

	d.deliver(ctx, n, pref)
	return n, nil
}

// preferenceFor loads the stored preference or falls back to system
// defaults. Lookup errors also fall back: a broken preference store
// must not suppress delivery entirely.
func (d *Dispatcher) preferenceFor(ctx context.Context, ownerID int64, typ notification.Type) *notification.Preference {
	pref, err := d.preferences.Get(ctx, ownerID, typ)
	if err == nil {
		return pref
	}
	if err != idb.ErrPreferenceNotFound {
		d.logger.WithError(err).WithField("owner_id", ownerID).
			Warn("preference lookup failed; using defaults")
	}
	return notification.DefaultPreference(ownerID, typ)
}

// deliver fans out over the enabled channels, one task per channel,
// each bounded by the per-send timeout so a slow channel cannot stall
// the others.
func (d *Dispatcher) deliver(ctx context.Context, n *notification.Notification, pref *notification.Preference) {
	rcpt, err := d.recipients.GetByID(ctx, n.OwnerID)
	if err != nil {
		d.logger.WithError(err).WithField("owner_id", n.OwnerID).
			Warn("recipient lookup failed; channels needing contact details will be skipped")
		rcpt = nil
	}

	var wg sync.WaitGroup
	for _, channel := range pref.EnabledChannels() {
		send, ok := d.senders[channel]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(channel notification.Channel, send sendFunc) {
			defer wg.Done()
			sctx, cancel := d.sendContext()
			defer cancel()

			if err := send(sctx, rcpt, n); err != nil {
				d.logger.WithError(err).WithFields(logrus.Fields{
					"notification_id": n.ID,
					"owner_id":        n.OwnerID,
					"channel":         channel,
				}).Error("channel delivery failed")
			}
		}(channel, send)
	}
	wg.Wait()
}

func (d *Dispatcher) sendContext() (context.Context, context.CancelFunc) {
	// Deliveries are detached from the caller's context on purpose: a
	// finished tick must not cancel in-flight sends.
	if d.sendTimeout > 0 {
		return context.WithTimeout(context.Background(), d.sendTimeout)
	}
	return context.WithCancel(context.Background())
}

func (d *Dispatcher) sendInApp(_ context.Context, _ *recipient.Recipient, n *notification.Notification) error {
	report := d.live.SendToOwner(n.OwnerID, notification.Envelope{
		Type:      "notification",
		Data:      n.AsView(),
		Timestamp: time.Now().UTC(),
	})
	if report.Pruned > 0 {
		d.logger.WithFields(logrus.Fields{
			"owner_id": n.OwnerID,
			"pruned":   report.Pruned,
		}).Warn("pruned dead connections during in-app delivery")
	}
	// No live connection is not a failure; the record is queryable.
	return nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, rcpt *recipient.Recipient, n *notification.Notification) error {
	if rcpt == nil || !rcpt.Email.Valid {
		return nil
	}
	return d.email.Send(ctx, rcpt.Email.String, n.Title, n.Message, n.DeliveryKey.String())
}

func (d *Dispatcher) sendPush(ctx context.Context, _ *recipient.Recipient, n *notification.Notification) error {
	devices, err := d.devices.ListActive(ctx, n.OwnerID)
	if err != nil {
		return fmt.Errorf("listing push devices: %w", err)
	}
	if len(devices) == 0 {
		return nil
	}

	tokens := make([]string, len(devices))
	for i, dev := range devices {
		tokens[i] = dev.Token
	}
	data := map[string]string{
		"notification_id": fmt.Sprintf("%d", n.ID),
		"delivery_key":    n.DeliveryKey.String(),
		"type":            string(n.Type),
	}

	results, err := d.push.Send(ctx, tokens, n.Title, n.Message, data)
	for _, res := range results {
		if res.Invalid {
			if derr := d.devices.Deactivate(ctx, res.Token); derr != nil {
				d.logger.WithError(derr).Warn("failed to deactivate rejected push token")
			}
		}
	}
	return err
}

func (d *Dispatcher) sendTelegram(_ context.Context, rcpt *recipient.Recipient, n *notification.Notification) error {
	if rcpt == nil || !rcpt.TelegramChatID.Valid {
		return nil
	}
	return d.telegram.SendMessage(rcpt.TelegramChatID.Int64, n.Title+"\n\n"+n.Message)
}

// ListForOwner returns the owner's notifications, applying passive
// expiry: rows whose ExpiresAt has passed are archived in place at
// read time rather than by a background sweep.
func (d *Dispatcher) ListForOwner(ctx context.Context, ownerID int64, limit int) ([]*notification.Notification, error) {
	items, err := d.notifications.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	now := time.Now().UTC()
	for _, n := range items {
		if n.Status != notification.StatusArchived && n.ExpiredBy(now) {
			if err := d.notifications.UpdateStatus(ctx, n.ID, notification.StatusArchived, time.Time{}); err != nil {
				d.logger.WithError(err).WithField("notification_id", n.ID).
					Warn("failed to archive expired notification")
				continue
			}
			n.Status = notification.StatusArchived
		}
	}
	return items, nil
}

// MarkRead transitions unread -> read for the owner's notification.
// Expired notifications archive instead of becoming read.
func (d *Dispatcher) MarkRead(ctx context.Context, id, ownerID int64) error {
	n, err := d.notifications.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.OwnerID != ownerID {
		return ErrNotificationNotOwned
	}

	now := time.Now().UTC()
	if n.ExpiredBy(now) {
		if n.Status == notification.StatusArchived {
			return nil
		}
		return d.notifications.UpdateStatus(ctx, id, notification.StatusArchived, time.Time{})
	}
	if n.Status != notification.StatusUnread {
		return nil
	}
	return d.notifications.UpdateStatus(ctx, id, notification.StatusRead, now)
}

// Archive moves a notification to archived regardless of read state.
func (d *Dispatcher) Archive(ctx context.Context, id, ownerID int64) error {
	n, err := d.notifications.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.OwnerID != ownerID {
		return ErrNotificationNotOwned
	}
	if n.Status == notification.StatusArchived {
		return nil
	}
	return d.notifications.UpdateStatus(ctx, id, notification.StatusArchived, time.Time{})
}
