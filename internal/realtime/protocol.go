package realtime

import (
	"github.com/guideworks/livesync/internal/docstore"
)

const (
	FrameSubscribed   = "subscribed"
	FrameNotification = "notification"
	FrameError        = "error"
)

type SubscribeRequest struct {
	Table  docstore.Table `json:"table"`
	Locale string         `json:"locale"`
}

type Frame struct {
	Type         string                 `json:"type"`
	Notification *docstore.Notification `json:"notification,omitempty"`
	Message      string                 `json:"message,omitempty"`
}

type Logger interface {
	Printf(format string, args ...any)
}
