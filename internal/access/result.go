package access

import (
	"strings"

	"github.com/iliyamo/qr-access-control/internal/model"
)

// Outcome is the closed set of scan results the guard interface can
// receive.  Raw storage errors never leak past OutcomeError.
type Outcome string

const (
	OutcomeAllowed Outcome = "ALLOWED"
	OutcomeDenied  Outcome = "DENIED"
	OutcomeInvalid Outcome = "INVALID_QR"
	OutcomeExpired Outcome = "EXPIRED_QR"
	OutcomeError   Outcome = "ERROR"
)

// Machine-readable reason tokens.  Each deny outcome carries exactly one;
// they are stable API values, the human messages are not.
const (
	ReasonOK             = "ok"
	ReasonMalformedCode  = "malformed_code"
	ReasonCodeNotFound   = "code_not_found"
	ReasonAlreadyUsed    = "already_used"
	ReasonRevoked        = "revoked"
	ReasonExpired        = "expired"
	ReasonVisitLapsed    = "visit_lapsed"
	ReasonAlreadyInside  = "already_inside"
	ReasonNotInside      = "not_inside"
	ReasonVisitCompleted = "visit_completed"
	ReasonOrphanedPass   = "orphaned_pass"
	ReasonUnknownKind    = "unknown_kind"
	ReasonTransient      = "transient_error"
)

// messages maps reason tokens to the guard-facing text shown at the gate.
// The deployment's user language is Spanish.
var messages = map[string]string{
	ReasonMalformedCode:  "Código QR inválido.",
	ReasonCodeNotFound:   "Código QR inválido.",
	ReasonAlreadyUsed:    "El código QR ya fue utilizado.",
	ReasonRevoked:        "El código QR fue revocado.",
	ReasonExpired:        "El código QR ha expirado.",
	ReasonVisitLapsed:    "La visita ha expirado.",
	ReasonAlreadyInside:  "Ya se encuentra dentro.",
	ReasonNotInside:      "Aún no ha ingresado.",
	ReasonVisitCompleted: "La visita ya fue completada.",
	ReasonOrphanedPass:   "Código QR inválido.",
	ReasonUnknownKind:    "Código QR inválido.",
	ReasonTransient:      "Error temporal, escanee nuevamente.",
}

// Message returns the guard-facing text for a reason token.
func Message(reason string) string {
	if m, ok := messages[reason]; ok {
		return m
	}
	return "Acceso permitido."
}

// SubjectSnapshot is the read-only view of a subject included in scan
// results so the guard UI can display who is at the gate.  Exactly one of
// AccessState / GuestState is meaningful, according to Ref.Kind.
type SubjectSnapshot struct {
	Ref         model.SubjectRef        `json:"-"`
	Name        string                  `json:"name"`
	Type        model.InstitutionalType `json:"type,omitempty"`
	AccessState model.AccessState       `json:"access_state,omitempty"`
	GuestState  model.GuestState        `json:"guest_state,omitempty"`
}

// Result is the structured outcome of a scan.
type Result struct {
	Outcome Outcome          `json:"outcome"`
	Reason  string           `json:"reason"`
	Message string           `json:"message"`
	Kind    model.PassKind   `json:"kind,omitempty"`
	Subject *SubjectSnapshot `json:"subject,omitempty"`
}

func deny(outcome Outcome, reason string, kind model.PassKind, subj *SubjectSnapshot) Result {
	return Result{Outcome: outcome, Reason: reason, Message: Message(reason), Kind: kind, Subject: subj}
}

// KindSet is the allow-list of recognized pass kinds: ENTRY, EXIT and any
// operator-configured extension kinds.  Anything outside the set is
// rejected as invalid input before storage is touched.
type KindSet struct {
	m map[model.PassKind]struct{}
}

// NewKindSet builds the allow-list.  Extension names are upper-cased and
// blanks are ignored; ENTRY and EXIT are always present.
func NewKindSet(extra []string) KindSet {
	m := map[model.PassKind]struct{}{
		model.KindEntry: {},
		model.KindExit:  {},
	}
	for _, e := range extra {
		e = strings.ToUpper(strings.TrimSpace(e))
		if e != "" {
			m[model.PassKind(e)] = struct{}{}
		}
	}
	return KindSet{m: m}
}

// Valid reports whether the kind is in the allow-list.
func (s KindSet) Valid(k model.PassKind) bool {
	_, ok := s.m[k]
	return ok
}
