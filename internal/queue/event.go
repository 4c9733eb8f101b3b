// Package queue defines message payloads exchanged over the message broker.
package queue

// AccessEventMessage is published after a scan decision commits for an
// institutional user with a contact address.  It carries enough
// information for downstream consumers to format the notification email
// without querying the primary database.
type AccessEventMessage struct {
	SubjectName string `json:"subject_name"`
	SubjectType string `json:"subject_type"`
	Email       string `json:"email"`
	Kind        string `json:"kind"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason"`
	GuardID     uint64 `json:"guard_id"`
	OccurredAt  string `json:"occurred_at"`
}
