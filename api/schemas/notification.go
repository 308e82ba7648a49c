package schemas

// -- Notification Schemas --

// NotificationPriority mirrors the 0..2 scale used by desktop notification centers.
type NotificationPriority int

const (
	PriorityLow    NotificationPriority = 0
	PriorityNormal NotificationPriority = 1
	PriorityHigh   NotificationPriority = 2
)

// NotificationAction is a button offered on a notification.
type NotificationAction struct {
	Title string `json:"title"`
}

// Notification is a best effort, fire-and-forget message to the user.
type Notification struct {
	// ID is optional. When empty the notifier assigns one.
	ID       string               `json:"id,omitempty"`
	Title    string               `json:"title"`
	Message  string               `json:"message"`
	Priority NotificationPriority `json:"priority"`
	Actions  []NotificationAction `json:"actions,omitempty"`
	// Sticky notifications stay visible until dismissed.
	Sticky bool `json:"sticky,omitempty"`
}
