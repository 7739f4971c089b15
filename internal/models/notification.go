package models

import "time"

const (
	NotificationLike    = "like"
	NotificationComment = "comment"
	NotificationFollow  = "follow"
	NotificationRepost  = "repost"
	NotificationPost    = "post"
)

type Notification struct {
	ID         string  `json:"id"`
	GroupKey   *string `json:"groupKey,omitempty"`
	GroupCount *int    `json:"groupCount,omitempty"`
	Type       string  `json:"type"`
	EntityType string  `json:"entityType"`
	EntityID   string  `json:"entityId"`
	Text       string  `json:"text"`
	CreatedAt  string  `json:"createdAt"`
	ReadAt     *string `json:"readAt"`
	Actor      Author  `json:"actor"`
}

// Key is the identity used for dedup, update and removal.
func (n Notification) Key() string {
	if n.GroupKey != nil && *n.GroupKey != "" {
		return *n.GroupKey
	}
	return n.ID
}

func (n Notification) Unread() bool {
	return n.ReadAt == nil
}

// Time parses CreatedAt. Unparseable timestamps sort as the zero time.
func (n Notification) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, n.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}
