package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianshen/twspoc/internal/notifications"
	"github.com/julianshen/twspoc/pkg/enums"
)

type SortField string

const (
	SortTimestamp SortField = "timestamp"
	SortPriority  SortField = "priority"
	SortRead      SortField = "read"
)

type SortOrder string

const (
	OrderDesc SortOrder = "desc"
	OrderAsc  SortOrder = "asc"
)

// ParseSortField defaults to timestamp.
func ParseSortField(value string) (SortField, error) {
	switch SortField(strings.ToLower(strings.TrimSpace(value))) {
	case "", SortTimestamp:
		return SortTimestamp, nil
	case SortPriority:
		return SortPriority, nil
	case SortRead:
		return SortRead, nil
	}
	return "", fmt.Errorf("invalid sort field %q", value)
}

// ParseSortOrder defaults to desc.
func ParseSortOrder(value string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(value))) {
	case "", OrderDesc:
		return OrderDesc, nil
	case OrderAsc:
		return OrderAsc, nil
	}
	return "", fmt.Errorf("invalid sort order %q", value)
}

// Filter narrows and orders List results. Zero values match everything, newest first.
type Filter struct {
	Read       *bool
	Priorities []enums.Priority
	Labels     []string
	GroupID    string
	Since      *time.Time
	Sort       SortField
	Order      SortOrder
}

func (f Filter) matches(n notifications.Notification) bool {
	if f.Read != nil && n.Read != *f.Read {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, n.Priority) {
		return false
	}
	if len(f.Labels) > 0 && !n.HasLabel(f.Labels...) {
		return false
	}
	if f.GroupID != "" && n.GroupID != f.GroupID {
		return false
	}
	if f.Since != nil && n.Timestamp.Before(*f.Since) {
		return false
	}
	return true
}

// less compares by the sort field, then newest first.
func (f Filter) less(items []notifications.Notification) func(i, j int) bool {
	asc := f.Order == OrderAsc
	return func(i, j int) bool {
		a, b := items[i], items[j]
		switch f.Sort {
		case SortPriority:
			if a.Priority.Rank() != b.Priority.Rank() {
				if asc {
					return a.Priority.Rank() < b.Priority.Rank()
				}
				return a.Priority.Rank() > b.Priority.Rank()
			}
			return notifications.Newer(a, b)
		case SortRead:
			if a.Read != b.Read {
				if asc {
					return !a.Read
				}
				return a.Read
			}
			return notifications.Newer(a, b)
		}
		if asc {
			return a.Timestamp.Before(b.Timestamp)
		}
		return notifications.Newer(a, b)
	}
}

func containsPriority(list []enums.Priority, p enums.Priority) bool {
	for _, candidate := range list {
		if candidate == p {
			return true
		}
	}
	return false
}
