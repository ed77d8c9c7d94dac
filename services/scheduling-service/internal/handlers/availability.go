package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/identity"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/model"
)

type createAvailabilityRequest struct {
	InstructorID string `json:"instructor_id"`
	StartAt      string `json:"start_at"`
	EndAt        string `json:"end_at"`
}

type availabilityItem struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	InstructorID string `json:"instructor_id"`
	StartAt      string `json:"start_at"`
	EndAt        string `json:"end_at"`
	CreatedAt    string `json:"created_at"`
}

func toAvailabilityItem(slot model.AvailabilitySlot) availabilityItem {
	return availabilityItem{
		ID:           slot.ID,
		TenantID:     slot.TenantID,
		InstructorID: slot.InstructorID,
		StartAt:      slot.StartAt.UTC().Format(time.RFC3339),
		EndAt:        slot.EndAt.UTC().Format(time.RFC3339),
		CreatedAt:    slot.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateAvailability lets an instructor declare an offered window. Admins may
// declare on behalf of an instructor but must name one.
func (h *SchedulingHandler) CreateAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req createAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, r, h.logger, "invalid json body")
		return
	}

	var instructorID string
	switch id.Role {
	case identity.RoleInstructor:
		instructorID = id.UserID
	case identity.RoleAdmin:
		instructorID = strings.TrimSpace(req.InstructorID)
		if instructorID == "" {
			writeValidation(w, r, h.logger, "admin must provide instructor_id")
			return
		}
	default:
		writeForbidden(w, r, h.logger, "only instructors and admins can manage availability")
		return
	}

	startAt, err := parseRFC3339(req.StartAt, "start_at")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	endAt, err := parseRFC3339(req.EndAt, "end_at")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	slot, err := h.svc.CreateAvailability(r.Context(), id.TenantID, instructorID, startAt, endAt)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAvailabilityItem(slot))
}

func (h *SchedulingHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	limit, offset := parsePagination(r)
	slots, total, err := h.svc.ListAvailability(r.Context(), id.TenantID, limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	items := make([]availabilityItem, 0, len(slots))
	for _, slot := range slots {
		items = append(items, toAvailabilityItem(slot))
	}
	writeJSON(w, http.StatusOK, listResponse[availabilityItem]{
		Data:  items,
		Total: total,
		Limit: limit,
		Page:  offset/limit + 1,
	})
}
