package model

import "time"

// AccessState is the physical location flag of an institutional user.
// It flips on every successful scan and is cleared back to OUTSIDE by the
// institution's external weekly reset job.
type AccessState string

const (
	StateOutside AccessState = "OUTSIDE" // not on the premises
	StateInside  AccessState = "INSIDE"  // currently on the premises
)

// InstitutionalType classifies institutional users.  It drives
// notification eligibility only; the validator treats all types alike.
type InstitutionalType string

const (
	TypeStudent InstitutionalType = "STUDENT"
	TypeTeacher InstitutionalType = "TEACHER"
	TypePAE     InstitutionalType = "PAE"
)

// InstitutionalUser models a row of the `institutional_users` table.
// Account CRUD lives in an external subsystem; this service only reads
// identity fields and reads/writes the access state.
//
// Fields:
//  ID          – primary key identifier.
//  FullName    – display name used in notifications and audit review.
//  Email       – contact channel for access notifications (may be empty).
//  Type        – STUDENT, TEACHER or PAE.
//  AccessState – current location flag (INSIDE or OUTSIDE).
//  IsActive    – whether the account may be issued passes.
//  CreatedAt   – timestamp of creation.
type InstitutionalUser struct {
	ID          uint64            // institutional_users.id
	FullName    string            // institutional_users.full_name
	Email       string            // institutional_users.email
	Type        InstitutionalType // institutional_users.type
	AccessState AccessState       // institutional_users.access_state
	IsActive    bool              // institutional_users.is_active
	CreatedAt   time.Time         // institutional_users.created_at
}

// Notifiable reports whether access events for this user should be
// dispatched to the notifier.  Only institutional users with a resolvable
// contact channel are eligible; guests never are.
func (u *InstitutionalUser) Notifiable() bool {
	return u.Email != ""
}

// GuestState is the lifecycle of a guest visit.  Unlike institutional
// users a guest walks a one-way path: OUTSIDE, then INSIDE after the entry
// scan, then COMPLETED after the exit scan.  COMPLETED is terminal.
type GuestState string

const (
	GuestOutside   GuestState = "OUTSIDE"
	GuestInside    GuestState = "INSIDE"
	GuestCompleted GuestState = "COMPLETED"
)

// GuestVisit models a row of the `guest_visits` table.  The visit carries
// its own validity window; when expires_at passes, the whole visit lapses
// regardless of the state of its passes.
//
// Fields:
//  ID        – primary key identifier.
//  PublicID  – UUID handed to the host for correlation.
//  FullName  – guest display name.
//  Document  – identity document number presented at registration.
//  State     – OUTSIDE, INSIDE or COMPLETED.
//  ExpiresAt – end of the visit validity window.
//  CreatedAt – timestamp of registration.
type GuestVisit struct {
	ID        uint64     // guest_visits.id
	PublicID  string     // guest_visits.public_id (UUID)
	FullName  string     // guest_visits.full_name
	Document  string     // guest_visits.document
	State     GuestState // guest_visits.state
	ExpiresAt time.Time  // guest_visits.expires_at
	CreatedAt time.Time  // guest_visits.created_at
}

// LapsedBy reports whether the visit window has ended at the given
// instant.
func (g *GuestVisit) LapsedBy(now time.Time) bool {
	return !g.ExpiresAt.After(now)
}
