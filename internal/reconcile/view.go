package reconcile

import (
	"time"

	"github.com/julianshen/twspoc/internal/notifications"
)

// View is an immutable copy of the engine state published after every change.
type View struct {
	Notifications  []notifications.Notification    `json:"notifications"`
	Unread         int                             `json:"unread"`
	Live           bool                            `json:"live"`
	Degraded       bool                            `json:"degraded"`
	FallbackActive bool                            `json:"fallbackActive"`
	Offline        bool                            `json:"offline"`
	LastSeen       time.Time                       `json:"lastSeen"`
	Pending        []notifications.PendingMutation `json:"pending"`
}

// Clone returns a deep copy that shares no backing arrays with v.
func (v View) Clone() View {
	out := v
	out.Notifications = nil
	out.Pending = nil
	if v.Notifications != nil {
		out.Notifications = make([]notifications.Notification, len(v.Notifications))
		for i, n := range v.Notifications {
			out.Notifications[i] = n.Clone()
		}
	}
	if v.Pending != nil {
		out.Pending = append([]notifications.PendingMutation(nil), v.Pending...)
	}
	return out
}

// Sink receives every published view. Publish is called from the engine loop and must
// not block.
type Sink interface {
	Publish(View)
}
