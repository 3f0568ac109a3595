package chat

import "time"

// ActivityType enumerates the audit events recorded for a user.
type ActivityType string

const (
	ActivityLogin             ActivityType = "login"
	ActivityLogout            ActivityType = "logout"
	ActivityChatStart         ActivityType = "chat_start"
	ActivityChatEnd           ActivityType = "chat_end"
	ActivityAppointmentBooked ActivityType = "appointment_booked"
	ActivityMoodEntry         ActivityType = "mood_entry"
)

// Activity is an append-only audit record.
type Activity struct {
	ID           string         `json:"id"`
	UserID       int64          `json:"userId"`
	ActivityType ActivityType   `json:"activity_type"`
	Timestamp    time.Time      `json:"timestamp"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
}
