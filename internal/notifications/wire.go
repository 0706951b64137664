package notifications

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/julianshen/twspoc/pkg/errors"
	"github.com/julianshen/twspoc/pkg/enums"
)

// Record is the JSON shape served by the snapshot endpoint and carried by every push
// transport.
type Record struct {
	ID          string             `json:"id" validate:"required"`
	Timestamp   string             `json:"timestamp" validate:"required"`
	Title       string             `json:"title"`
	Message     string             `json:"message"`
	Priority    string             `json:"priority"`
	Read        bool               `json:"read"`
	Labels      []string           `json:"labels,omitempty"`
	Attachments []AttachmentRecord `json:"attachments,omitempty"`
	AppName     string             `json:"appName,omitempty"`
	GroupID     string             `json:"groupId,omitempty"`
	Expiry      string             `json:"expiry,omitempty"`
}

type AttachmentRecord struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	URL  string `json:"url"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// DecodePayload parses one JSON record. Malformed input yields a DECODE_ERROR.
func DecodePayload(raw []byte) (Notification, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Notification{}, pkgerrors.Wrap(pkgerrors.CodeDecode, err, "invalid notification json")
	}
	return rec.Notification()
}

// Notification converts the wire record into the canonical value.
func (r Record) Notification() (Notification, error) {
	r.ID = strings.TrimSpace(r.ID)
	r.Timestamp = strings.TrimSpace(r.Timestamp)
	if err := validate.Struct(r); err != nil {
		return Notification{}, decodeValidationError(err)
	}

	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return Notification{}, pkgerrors.Wrap(pkgerrors.CodeDecode, err, "invalid timestamp").
			WithDetails(map[string]any{"field": "timestamp", "id": r.ID})
	}

	priority, err := enums.ParsePriority(r.Priority)
	if err != nil {
		return Notification{}, pkgerrors.Wrap(pkgerrors.CodeDecode, err, "unknown priority").
			WithDetails(map[string]any{"field": "priority", "id": r.ID})
	}

	n := Notification{
		ID:        r.ID,
		Title:     r.Title,
		Message:   r.Message,
		Timestamp: ts,
		Read:      r.Read,
		Priority:  priority,
		AppName:   r.AppName,
		GroupID:   r.GroupID,
	}
	if len(r.Labels) > 0 {
		n.Labels = append([]string(nil), r.Labels...)
	}
	if expiry := strings.TrimSpace(r.Expiry); expiry != "" {
		exp, err := parseTimestamp(expiry)
		if err != nil {
			return Notification{}, pkgerrors.Wrap(pkgerrors.CodeDecode, err, "invalid expiry").
				WithDetails(map[string]any{"field": "expiry", "id": r.ID})
		}
		n.Expiry = &exp
	}
	for _, att := range r.Attachments {
		if strings.TrimSpace(att.ID) == "" {
			continue
		}
		// Only the first usable attachment is surfaced.
		n.Attachment = &Attachment{
			ID:    att.ID,
			Type:  enums.ParseAttachmentType(att.Type),
			Title: att.Type,
			Data:  map[string]any{"url": att.URL},
		}
		break
	}
	return n, nil
}

// NewRecord renders n in wire form.
func NewRecord(n Notification) Record {
	rec := Record{
		ID:        n.ID,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339Nano),
		Title:     n.Title,
		Message:   n.Message,
		Priority:  string(n.Priority),
		Read:      n.Read,
		Labels:    n.Labels,
		AppName:   n.AppName,
		GroupID:   n.GroupID,
	}
	if n.Expiry != nil {
		rec.Expiry = n.Expiry.UTC().Format(time.RFC3339Nano)
	}
	if n.Attachment != nil {
		url, _ := n.Attachment.Data["url"].(string)
		rec.Attachments = []AttachmentRecord{{
			Type: string(n.Attachment.Type),
			ID:   n.Attachment.ID,
			URL:  url,
		}}
	}
	return rec
}

func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func decodeValidationError(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = "is " + fieldErr.Tag()
		}
		return pkgerrors.New(pkgerrors.CodeDecode, "notification failed validation").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDecode, err, "notification failed validation")
}
