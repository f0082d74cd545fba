package events

import (
	"time"
)

const (
	TypePostPublished = "post.published"
	TypePostUpdated   = "post.updated"
	TypePostDeleted   = "post.deleted"
)

type PostPayload struct {
	PostID       string `json:"post_id"`
	Slug         string `json:"slug"`
	PreviousSlug string `json:"previous_slug,omitempty"`
	Title        string `json:"title,omitempty"`
}

// PostEvent is published by the CMS whenever a post changes state.
type PostEvent struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   PostPayload `json:"payload"`
}

// Slugs returns the distinct non-empty slugs the event touches.
func (e PostEvent) Slugs() []string {
	slugs := make([]string, 0, 2)
	if e.Payload.Slug != "" {
		slugs = append(slugs, e.Payload.Slug)
	}
	if e.Payload.PreviousSlug != "" && e.Payload.PreviousSlug != e.Payload.Slug {
		slugs = append(slugs, e.Payload.PreviousSlug)
	}
	return slugs
}

func isPostEvent(eventType string) bool {
	switch eventType {
	case TypePostPublished, TypePostUpdated, TypePostDeleted:
		return true
	default:
		return false
	}
}
