package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nayeem-hossain/coursebook/libs/httpx"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/booking"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/model"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := booking.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case booking.KindValidation, booking.KindNoAvailability:
		status = http.StatusBadRequest
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindForbidden:
		status = http.StatusForbidden
	case booking.KindConflict:
		status = http.StatusConflict
	}

	resp := errorResponse{
		Error:     err.Error(),
		Code:      string(kind),
		RequestID: httpx.RequestIDFromContext(r.Context()),
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		resp.Error = "internal server error"
		resp.Code = "INTERNAL_ERROR"
	}
	writeJSON(w, status, resp)
}

func writeForbidden(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string) {
	writeError(w, r, logger, booking.NewForbidden("%s", msg))
}

// parsePagination reads ?page and ?limit the way the rest of the platform
// does: 1-based page, capped limit.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	page := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}
	return limit, (page - 1) * limit
}

func parseRFC3339(raw, field string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, booking.NewValidation("invalid %s", field)
	}
	return t, nil
}

type bookingItem struct {
	ID           string  `json:"id"`
	TenantID     string  `json:"tenant_id"`
	StudentID    string  `json:"student_id"`
	InstructorID *string `json:"instructor_id,omitempty"`
	Name         string  `json:"name"`
	RequestedAt  string  `json:"requested_at"`
	StartAt      string  `json:"start_at"`
	EndAt        string  `json:"end_at"`
	Status       string  `json:"status"`
	ApprovedAt   string  `json:"approved_at,omitempty"`
	AssignedAt   string  `json:"assigned_at,omitempty"`
	CompletedAt  string  `json:"completed_at,omitempty"`
	CancelledAt  string  `json:"cancelled_at,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func toBookingItem(b model.Booking) bookingItem {
	item := bookingItem{
		ID:           b.ID,
		TenantID:     b.TenantID,
		StudentID:    b.StudentID,
		InstructorID: b.InstructorID,
		Name:         b.Name,
		RequestedAt:  b.RequestedAt.UTC().Format(time.RFC3339),
		StartAt:      b.StartAt.UTC().Format(time.RFC3339),
		EndAt:        b.EndAt.UTC().Format(time.RFC3339),
		Status:       string(b.Status),
		CreatedAt:    b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.ApprovedAt != nil {
		item.ApprovedAt = b.ApprovedAt.UTC().Format(time.RFC3339)
	}
	if b.AssignedAt != nil {
		item.AssignedAt = b.AssignedAt.UTC().Format(time.RFC3339)
	}
	if b.CompletedAt != nil {
		item.CompletedAt = b.CompletedAt.UTC().Format(time.RFC3339)
	}
	if b.CancelledAt != nil {
		item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func toBookingItems(bookings []model.Booking) []bookingItem {
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingItem(b))
	}
	return items
}
