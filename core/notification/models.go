package notification

import "time"

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"timestamp"`
}

// MarkReadRequest marks one notification as read, or all of them when ID is empty.
type MarkReadRequest struct {
	ID string `json:"id" form:"id"`
}
