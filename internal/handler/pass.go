package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/qr-access-control/internal/access"
	"github.com/iliyamo/qr-access-control/internal/model"
	"github.com/iliyamo/qr-access-control/internal/repository"
)

// PassHandler issues passes and lists a subject's pass history.
type PassHandler struct {
	Issuer *access.Issuer
	Passes *repository.PassRepo
}

func NewPassHandler(i *access.Issuer, p *repository.PassRepo) *PassHandler {
	return &PassHandler{Issuer: i, Passes: p}
}

type issueReq struct {
	SubjectKind string `json:"subject_kind"` // INSTITUTIONAL | GUEST
	SubjectID   uint64 `json:"subject_id"`
	Kind        string `json:"kind"` // ENTRY | EXIT | configured extras
	TTLMin      int    `json:"ttl_min,omitempty"`
}

type ensureReq struct {
	SubjectKind string `json:"subject_kind"`
	SubjectID   uint64 `json:"subject_id"`
	TTLMin      int    `json:"ttl_min,omitempty"`
}

func parseSubject(kind string, id uint64) (model.SubjectRef, bool) {
	switch model.SubjectKind(strings.ToUpper(strings.TrimSpace(kind))) {
	case model.SubjectInstitutional:
		return model.InstitutionalRef(id), true
	case model.SubjectGuest:
		return model.GuestRef(id), true
	}
	return model.SubjectRef{}, false
}

// Issue handles POST /v1/passes.  Re-issuing for a subject that already
// holds an ACTIVE pass of that kind returns the existing pass unchanged.
func (h *PassHandler) Issue(c echo.Context) error {
	var req issueReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	subject, ok := parseSubject(req.SubjectKind, req.SubjectID)
	if !ok || req.SubjectID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "subject_kind must be INSTITUTIONAL or GUEST with a subject_id"})
	}
	kind := model.PassKind(strings.ToUpper(strings.TrimSpace(req.Kind)))

	pass, err := h.Issuer.Issue(c.Request().Context(), subject, kind, req.TTLMin)
	if err != nil {
		return issueError(c, err)
	}
	return c.JSON(http.StatusCreated, pass)
}

// Ensure handles POST /v1/passes/ensure: it guarantees the subject holds
// both an ENTRY and an EXIT pass and returns the pair.  Enrollment flows
// call this once per person.
func (h *PassHandler) Ensure(c echo.Context) error {
	var req ensureReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	subject, ok := parseSubject(req.SubjectKind, req.SubjectID)
	if !ok || req.SubjectID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "subject_kind must be INSTITUTIONAL or GUEST with a subject_id"})
	}

	pair, err := h.Issuer.EnsureBoth(c.Request().Context(), subject, req.TTLMin)
	if err != nil {
		return issueError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"entry": pair.Entry, "exit": pair.Exit})
}

// List handles GET /v1/passes?subject_kind=&subject_id= and returns the
// subject's passes, newest first.
func (h *PassHandler) List(c echo.Context) error {
	id, err := strconv.ParseUint(c.QueryParam("subject_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "subject_id required"})
	}
	subject, ok := parseSubject(c.QueryParam("subject_kind"), id)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "subject_kind must be INSTITUTIONAL or GUEST"})
	}
	passes, err := h.Passes.ListBySubject(c.Request().Context(), subject)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"passes": passes})
}

func issueError(c echo.Context, err error) error {
	switch err {
	case access.ErrUnknownKind:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown pass kind"})
	case access.ErrSubjectInactive:
		return c.JSON(http.StatusForbidden, echo.Map{"error": "subject is not eligible for passes"})
	case access.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": "subject not found"})
	case access.ErrTxConflict:
		return c.JSON(http.StatusConflict, echo.Map{"error": "temporary contention, retry"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue failed"})
	}
}
