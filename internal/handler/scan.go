package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/qr-access-control/internal/access"
)

// ScanHandler exposes the gate-side QR validation endpoint.
type ScanHandler struct {
	Validator *access.Validator
}

func NewScanHandler(v *access.Validator) *ScanHandler {
	return &ScanHandler{Validator: v}
}

type scanReq struct {
	Code string `json:"code"`
}

// Validate handles POST /v1/qr/validate.  The response is always 200 with
// a structured verdict; the guard app renders the message field and never
// needs to interpret HTTP status codes at the gate.
func (h *ScanHandler) Validate(c echo.Context) error {
	var req scanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	guardID, ok := getGuardID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	res := h.Validator.Scan(c.Request().Context(), req.Code, guardID)
	return c.JSON(http.StatusOK, res)
}

func parseIDParam(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

// getGuardID pulls the authenticated guard's id out of the echo context.
// The JWT middleware stores it under "guard_id"; the concrete type depends
// on how the claim was encoded, so every reasonable shape is accepted.
func getGuardID(c echo.Context) (uint64, bool) {
	v := c.Get("guard_id")
	switch id := v.(type) {
	case uint64:
		return id, true
	case int64:
		return uint64(id), true
	case int:
		return uint64(id), true
	case float64:
		return uint64(id), true
	case string:
		parsed, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
