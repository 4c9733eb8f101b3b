package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/qr-access-control/internal/access"
	"github.com/iliyamo/qr-access-control/internal/model"
	"github.com/iliyamo/qr-access-control/internal/repository"
)

// GuestHandler registers visitor stays and hands out their single-use
// pass pair in the same request, so reception prints both QR codes at
// check-in time.
type GuestHandler struct {
	Subjects *repository.SubjectRepo
	Issuer   *access.Issuer
}

func NewGuestHandler(s *repository.SubjectRepo, i *access.Issuer) *GuestHandler {
	return &GuestHandler{Subjects: s, Issuer: i}
}

type guestReq struct {
	FullName string `json:"full_name"`
	Document string `json:"document"`
	// Minutes the visit window stays open; the weekly cutoff still caps it.
	WindowMin int `json:"window_min,omitempty"`
}

const defaultVisitWindowMin = 12 * 60

// Create handles POST /v1/guests.
func (h *GuestHandler) Create(c echo.Context) error {
	var req guestReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Document = strings.TrimSpace(req.Document)
	if req.FullName == "" || req.Document == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "full_name and document required"})
	}
	if req.WindowMin <= 0 {
		req.WindowMin = defaultVisitWindowMin
	}

	expires := time.Now().UTC().Add(time.Duration(req.WindowMin) * time.Minute)
	visit, err := h.Subjects.CreateGuestVisit(c.Request().Context(), req.FullName, req.Document, expires)
	if err != nil {
		if err == repository.ErrConflict {
			return c.JSON(http.StatusConflict, echo.Map{"error": "visit window already closed"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create visit failed"})
	}

	pair, err := h.Issuer.EnsureBoth(c.Request().Context(), model.GuestRef(visit.ID), req.WindowMin)
	if err != nil {
		return issueError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"visit": visit,
		"entry": pair.Entry,
		"exit":  pair.Exit,
	})
}

// Get handles GET /v1/guests/:id.
func (h *GuestHandler) Get(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	visit, err := h.Subjects.FindGuest(c.Request().Context(), id)
	if err != nil {
		if err == access.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "visit not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, visit)
}
