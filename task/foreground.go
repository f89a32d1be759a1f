package task

import (
	"github.com/toyota-m2k/android-worker/notify"
	"github.com/toyota-m2k/android-worker/params"
)

// Descriptor keys written by Submit and read back by the registry
// handler. Everything the handler needs to rebuild the notification
// surface rides inside the descriptor itself.
const (
	keyTaskID     = "task.id"
	keyForeground = "task.foreground"

	keyChannelID      = "fg.channel.id"
	keyChannelName    = "fg.channel.name"
	keyImportance     = "fg.channel.importance"
	keyNotificationID = "fg.notification.id"
	keyTitle          = "fg.title"
	keyText           = "fg.text"
	keyIcon           = "fg.icon"
	keyDirection      = "fg.direction"
)

// ForegroundSession describes the persistent notification shown while a
// foreground task runs. Channel and NotificationID are validated when
// the task starts; an invalid session fails the task.
type ForegroundSession struct {
	Channel        notify.Channel
	NotificationID int32
	Title          string
	Text           string
	Icon           notify.Icon
	Direction      notify.Direction
}

// encode writes the session into a producer-mode descriptor.
func (s ForegroundSession) encode(d *params.Descriptor) error {
	puts := []error{
		d.PutString(keyChannelID, s.Channel.ID),
		d.PutString(keyChannelName, s.Channel.Name),
		d.PutInt32(keyImportance, int32(s.Channel.Importance)),
		d.PutInt32(keyNotificationID, s.NotificationID),
		d.PutString(keyTitle, s.Title),
		d.PutString(keyText, s.Text),
		d.PutString(keyIcon, string(s.Icon)),
		d.PutInt32(keyDirection, int32(s.Direction)),
	}
	for _, err := range puts {
		if err != nil {
			return err
		}
	}
	return nil
}

// decodeSession reads a session back from a consumer-mode descriptor.
// Missing fields read as zero values and are caught by notifier
// validation.
func decodeSession(d *params.Descriptor) ForegroundSession {
	return ForegroundSession{
		Channel: notify.Channel{
			ID:         d.String(keyChannelID, ""),
			Name:       d.String(keyChannelName, ""),
			Importance: notify.Importance(d.Int32(keyImportance, int32(notify.ImportanceDefault))),
		},
		NotificationID: d.Int32(keyNotificationID, 0),
		Title:          d.String(keyTitle, ""),
		Text:           d.String(keyText, ""),
		Icon:           notify.Icon(d.String(keyIcon, "")),
		Direction:      notify.Direction(d.Int32(keyDirection, int32(notify.DirectionDownload))),
	}
}
