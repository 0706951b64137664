package enums

import (
	"fmt"
	"strings"
)

// Priority ranks a notification. Unknown wire values are rejected at decode time.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var validPriorities = []Priority{
	PriorityHigh,
	PriorityMedium,
	PriorityLow,
}

// IsValid checks whether the priority matches the canonical enum.
func (p Priority) IsValid() bool {
	for _, candidate := range validPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// Rank orders priorities for sorting: high > medium > low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ParsePriority converts raw strings into Priority. Matching is case-insensitive and an
// empty value defaults to low.
func ParsePriority(value string) (Priority, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return PriorityLow, nil
	}
	for _, candidate := range validPriorities {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q", value)
}

// AttachmentType tags the payload carried by an attachment.
type AttachmentType string

const (
	AttachmentTypeDocument AttachmentType = "document"
	AttachmentTypeTask     AttachmentType = "task"
	AttachmentTypeOther    AttachmentType = "other"
)

var validAttachmentTypes = []AttachmentType{
	AttachmentTypeDocument,
	AttachmentTypeTask,
	AttachmentTypeOther,
}

// IsValid checks whether the type matches the canonical enum.
func (a AttachmentType) IsValid() bool {
	for _, candidate := range validAttachmentTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAttachmentType maps raw strings onto AttachmentType; anything unknown becomes other.
func ParseAttachmentType(value string) AttachmentType {
	normalized := AttachmentType(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized
	}
	return AttachmentTypeOther
}
