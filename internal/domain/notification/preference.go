package notification

// Channel is a delivery medium. The set is closed: the dispatcher maps
// each kind to a sender in a table, so adding a channel is a data
// change rather than a new conditional branch.
type Channel string

const (
	ChannelInApp    Channel = "in_app"
	ChannelEmail    Channel = "email"
	ChannelPush     Channel = "push"
	ChannelTelegram Channel = "telegram"
)

// Preference holds one owner's delivery settings for one notification
// type. Corresponds to the 'notification_preferences' table.
type Preference struct {
	ID              int64
	OwnerID         int64
	Type            Type
	InAppEnabled    bool
	EmailEnabled    bool
	PushEnabled     bool
	TelegramEnabled bool
	MinPriority     Priority
}

// DefaultPreference is the lazily applied setting for owners with no
// stored record: in-app, email, and push on at minimum priority LOW.
// Telegram stays opt-in because most recipients have no chat on file.
func DefaultPreference(ownerID int64, typ Type) *Preference {
	return &Preference{
		OwnerID:      ownerID,
		Type:         typ,
		InAppEnabled: true,
		EmailEnabled: true,
		PushEnabled:  true,
		MinPriority:  PriorityLow,
	}
}

// Allows reports whether a notification of the given priority passes
// the preference's minimum-priority gate.
func (p *Preference) Allows(priority Priority) bool {
	return priority.Rank() >= p.MinPriority.Rank()
}

// EnabledChannels lists the channels this preference turns on, in
// stable delivery order.
func (p *Preference) EnabledChannels() []Channel {
	channels := make([]Channel, 0, 4)
	if p.InAppEnabled {
		channels = append(channels, ChannelInApp)
	}
	if p.EmailEnabled {
		channels = append(channels, ChannelEmail)
	}
	if p.PushEnabled {
		channels = append(channels, ChannelPush)
	}
	if p.TelegramEnabled {
		channels = append(channels, ChannelTelegram)
	}
	return channels
}
