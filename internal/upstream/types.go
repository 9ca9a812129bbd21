package upstream

import "time"

// TokenPair holds the two bearer credentials issued by the backend. Both are
// opaque to this package: no expiry is tracked, staleness is discovered only
// through a 401 response.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// CurrentUser is the authenticated administrator as reported by /api/me/.
type CurrentUser struct {
	ID         int64  `json:"id"`
	UserID     string `json:"userid"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	IsRoot     bool   `json:"is_root"`
}

// Issue is a reported civic issue. The backend owns the record; clients hold
// read-mostly copies and mutate it only through status-transition calls.
type Issue struct {
	ID              int64     `json:"id"`
	TrackingID      string    `json:"tracking_id"`
	Title           string    `json:"issue_title"`
	Description     string    `json:"issue_description"`
	Location        string    `json:"location"`
	Department      string    `json:"department"`
	IssueDate       time.Time `json:"issue_date"`
	Status          string    `json:"status"`
	ConfidenceScore int       `json:"confidence_score"`
	AllocatedTo     string    `json:"allocated_to"`
	ImageURL        string    `json:"image_url"`
	CompletionURL   string    `json:"completion_url"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Presigned GET URLs, present on the detail endpoint only.
	ImagePresignedURL      string `json:"image_presigned_url,omitempty"`
	CompletionPresignedURL string `json:"completion_presigned_url,omitempty"`
}

// StatusUpdate is the reply of the status-transition endpoint.
type StatusUpdate struct {
	Status      string `json:"status"`
	AllocatedTo string `json:"allocated_to"`
}

// AccountRecord is an administrative account as listed by /api/users/.
type AccountRecord struct {
	ID         int64  `json:"id"`
	UserID     string `json:"userid"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	IsRoot     bool   `json:"is_root"`
	IsActive   bool   `json:"is_active"`
}

// RegisterRequest creates a new administrative account. Department is
// inherited server-side from the creating root user.
type RegisterRequest struct {
	UserID   string `json:"userid"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ActivityLogEntry is one append-only audit record owned by the backend.
type ActivityLogEntry struct {
	Action      string    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	Target      string    `json:"target_user"`
	Timestamp   time.Time `json:"timestamp"`
	IP          string    `json:"ip_address"`
	Details     string    `json:"details"`
}

// PresignTarget is a backend-issued direct-upload destination: a time-limited
// PUT URL plus the opaque storage key to report back on completion.
type PresignTarget struct {
	URL string `json:"url"`
	Key string `json:"key"`
}
