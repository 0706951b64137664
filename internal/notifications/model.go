package notifications

import (
	"reflect"
	"time"

	"github.com/julianshen/twspoc/pkg/enums"
)

// Attachment is an opaque reference rendered by the presentation layer.
type Attachment struct {
	ID    string               `json:"id"`
	Type  enums.AttachmentType `json:"type"`
	Title string               `json:"title"`
	Data  map[string]any       `json:"data,omitempty"`
}

// Notification is the canonical value exchanged between sync components. Values are
// passed by copy; use Clone before handing one to another goroutine.
type Notification struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
	Read       bool           `json:"read"`
	Priority   enums.Priority `json:"priority"`
	Labels     []string       `json:"labels,omitempty"`
	Attachment *Attachment    `json:"attachment,omitempty"`
	AppName    string         `json:"appName,omitempty"`
	GroupID    string         `json:"groupId,omitempty"`
	Expiry     *time.Time     `json:"expiry,omitempty"`
}

// Clone returns a deep copy of n.
func (n Notification) Clone() Notification {
	out := n
	if n.Labels != nil {
		out.Labels = append([]string(nil), n.Labels...)
	}
	if n.Attachment != nil {
		att := *n.Attachment
		if n.Attachment.Data != nil {
			att.Data = cloneMap(n.Attachment.Data)
		}
		out.Attachment = &att
	}
	if n.Expiry != nil {
		exp := *n.Expiry
		out.Expiry = &exp
	}
	return out
}

// Expired reports whether n carries an expiry at or before now.
func (n Notification) Expired(now time.Time) bool {
	return n.Expiry != nil && !n.Expiry.After(now)
}

// HasLabel reports whether any of the given labels is attached to n.
func (n Notification) HasLabel(labels ...string) bool {
	for _, want := range labels {
		for _, have := range n.Labels {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Equal compares two notifications field by field. Timestamps compare by instant.
func Equal(a, b Notification) bool {
	if a.ID != b.ID || a.Title != b.Title || a.Message != b.Message {
		return false
	}
	if !a.Timestamp.Equal(b.Timestamp) || a.Read != b.Read || a.Priority != b.Priority {
		return false
	}
	if a.AppName != b.AppName || a.GroupID != b.GroupID {
		return false
	}
	if !equalStrings(a.Labels, b.Labels) {
		return false
	}
	switch {
	case a.Expiry == nil && b.Expiry == nil:
	case a.Expiry == nil || b.Expiry == nil:
		return false
	case !a.Expiry.Equal(*b.Expiry):
		return false
	}
	switch {
	case a.Attachment == nil && b.Attachment == nil:
		return true
	case a.Attachment == nil || b.Attachment == nil:
		return false
	}
	return a.Attachment.ID == b.Attachment.ID &&
		a.Attachment.Type == b.Attachment.Type &&
		a.Attachment.Title == b.Attachment.Title &&
		reflect.DeepEqual(a.Attachment.Data, b.Attachment.Data)
}

// Newer is the display order: later timestamps first.
func Newer(a, b Notification) bool {
	return a.Timestamp.After(b.Timestamp)
}

// PendingMutation is a local change not yet confirmed by the remote authority.
type PendingMutation struct {
	ID       string             `json:"id"`
	Kind     enums.MutationKind `json:"kind"`
	IssuedAt time.Time          `json:"issuedAt"`
}

// FeedPosition tracks the newest timestamp and every ID seen in the current window.
type FeedPosition struct {
	LastSeen time.Time
	ids      map[string]struct{}
}

// NewFeedPosition returns an empty position.
func NewFeedPosition() *FeedPosition {
	return &FeedPosition{ids: map[string]struct{}{}}
}

// Reset rebuilds the position from a fresh snapshot.
func (p *FeedPosition) Reset(items []Notification) {
	p.ids = make(map[string]struct{}, len(items))
	p.LastSeen = time.Time{}
	for _, item := range items {
		p.Observe(item)
	}
}

// Observe records n as seen.
func (p *FeedPosition) Observe(n Notification) {
	if p.ids == nil {
		p.ids = map[string]struct{}{}
	}
	p.ids[n.ID] = struct{}{}
	if n.Timestamp.After(p.LastSeen) {
		p.LastSeen = n.Timestamp
	}
}

// Seen reports whether id was observed in the current window.
func (p *FeedPosition) Seen(id string) bool {
	_, ok := p.ids[id]
	return ok
}

// Len returns the number of IDs in the window.
func (p *FeedPosition) Len() int {
	return len(p.ids)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
