package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julianshen/twspoc/internal/store"
	"github.com/julianshen/twspoc/pkg/enums"
)

// NotificationQuery is the raw list query before conversion into a store.Filter.
type NotificationQuery struct {
	Read     string   `query:"read" validate:"omitempty,boolean"`
	Priority []string `query:"priority" validate:"omitempty,dive,oneof=high medium low"`
	Labels   []string `query:"label" validate:"omitempty,dive,max=64"`
	GroupID  string   `query:"groupId" validate:"omitempty,max=128"`
	Since    string   `query:"since" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Sort     string   `query:"sort" validate:"omitempty,oneof=timestamp priority read"`
	Order    string   `query:"order" validate:"omitempty,oneof=asc desc"`
}

// ParseNotificationFilter reads list filters from the query string. Repeated keys and
// comma separated values are both accepted for priority and label.
func ParseNotificationFilter(r *http.Request) (store.Filter, error) {
	values := r.URL.Query()
	q := NotificationQuery{
		Read:     strings.ToLower(strings.TrimSpace(values.Get("read"))),
		Priority: splitList(values["priority"], true),
		Labels:   splitList(values["label"], false),
		GroupID:  strings.TrimSpace(values.Get("groupId")),
		Since:    strings.TrimSpace(values.Get("since")),
		Sort:     strings.ToLower(strings.TrimSpace(values.Get("sort"))),
		Order:    strings.ToLower(strings.TrimSpace(values.Get("order"))),
	}
	if err := validate.Struct(q); err != nil {
		return store.Filter{}, formatValidationErrors(err)
	}
	return q.Filter()
}

// Filter converts a validated query.
func (q NotificationQuery) Filter() (store.Filter, error) {
	var filter store.Filter

	if q.Read != "" {
		read, err := strconv.ParseBool(q.Read)
		if err != nil {
			return store.Filter{}, formatValidationErrors(err)
		}
		filter.Read = &read
	}

	for _, raw := range q.Priority {
		p, err := enums.ParsePriority(raw)
		if err != nil {
			return store.Filter{}, formatValidationErrors(err)
		}
		filter.Priorities = append(filter.Priorities, p)
	}

	filter.Labels = q.Labels
	filter.GroupID = q.GroupID

	if q.Since != "" {
		since, err := time.Parse(time.RFC3339, q.Since)
		if err != nil {
			return store.Filter{}, formatValidationErrors(err)
		}
		filter.Since = &since
	}

	sort, err := store.ParseSortField(q.Sort)
	if err != nil {
		return store.Filter{}, formatValidationErrors(err)
	}
	order, err := store.ParseSortOrder(q.Order)
	if err != nil {
		return store.Filter{}, formatValidationErrors(err)
	}
	filter.Sort = sort
	filter.Order = order
	return filter, nil
}

func splitList(raw []string, lower bool) []string {
	var out []string
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if lower {
				part = strings.ToLower(part)
			}
			out = append(out, part)
		}
	}
	return out
}
