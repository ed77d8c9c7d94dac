package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/booking"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/cache"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/identity"
)

const listCacheTTL = 30 * time.Second

// SchedulingHandler exposes the booking lifecycle over HTTP. Role gating that
// does not depend on a specific booking happens here; booking-specific
// authorization (who may complete or cancel) lives in the service.
type SchedulingHandler struct {
	svc    *booking.Service
	cache  cache.Cache
	logger *slog.Logger
}

func NewSchedulingHandler(svc *booking.Service, listCache cache.Cache, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{svc: svc, cache: listCache, logger: logger}
}

type createBookingRequest struct {
	Name        string `json:"name"`
	RequestedAt string `json:"requested_at"`
	StartAt     string `json:"start_at"`
	EndAt       string `json:"end_at"`
}

type assignRequest struct {
	InstructorID string `json:"instructor_id"`
}

type listResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func writeValidation(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string) {
	writeError(w, r, logger, booking.NewValidation("%s", msg))
}

func (h *SchedulingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	if id.Role != identity.RoleStudent {
		writeForbidden(w, r, h.logger, "only students can request bookings")
		return
	}
	if !id.Approved {
		writeForbidden(w, r, h.logger, "student account is not approved yet")
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, r, h.logger, "invalid json body")
		return
	}
	requestedAt, err := parseRFC3339(req.RequestedAt, "requested_at")
	if err != nil {
		writeError(w, r, h.logger, err)
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

	b, err := h.svc.CreateBooking(r.Context(), id.TenantID, id.UserID, req.Name, requestedAt, startAt, endAt)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.invalidateListings(r, id.TenantID)
	writeJSON(w, http.StatusCreated, toBookingItem(b))
}

func (h *SchedulingHandler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	if id.Role != identity.RoleAdmin {
		writeForbidden(w, r, h.logger, "only admins can approve bookings")
		return
	}

	b, err := h.svc.ApproveBooking(r.Context(), id.TenantID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.invalidateListings(r, id.TenantID)
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

func (h *SchedulingHandler) AssignInstructor(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	if id.Role != identity.RoleAdmin {
		writeForbidden(w, r, h.logger, "only admins can assign instructors")
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, r, h.logger, "invalid json body")
		return
	}

	b, err := h.svc.AssignInstructor(r.Context(), id.TenantID, r.PathValue("id"), strings.TrimSpace(req.InstructorID))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.invalidateListings(r, id.TenantID)
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

func (h *SchedulingHandler) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	if id.Role != identity.RoleInstructor {
		writeForbidden(w, r, h.logger, "only instructors can accept bookings")
		return
	}

	b, err := h.svc.AcceptBooking(r.Context(), id.TenantID, r.PathValue("id"), id.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.invalidateListings(r, id.TenantID)
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

func (h *SchedulingHandler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	b, err := h.svc.CompleteBooking(r.Context(), id.TenantID, r.PathValue("id"), id.UserID, id.Role == identity.RoleAdmin)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.invalidateListings(r, id.TenantID)
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

func (h *SchedulingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	b, err := h.svc.CancelBooking(r.Context(), id.TenantID, r.PathValue("id"), id.UserID, id.Role == identity.RoleAdmin)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.invalidateListings(r, id.TenantID)
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

// ListBookings serves the tenant's bookings through the response cache.
// Students only see their own.
func (h *SchedulingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	limit, offset := parsePagination(r)
	studentID := ""
	scope := "all"
	if id.Role == identity.RoleStudent {
		studentID = id.UserID
		scope = id.UserID
	}

	key := listCacheKey(id.TenantID, scope, limit, offset)
	if h.cache != nil {
		if cached, hit, err := h.cache.Get(r.Context(), key); err != nil {
			h.logger.Warn("list cache get failed", "err", err)
		} else if hit {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(cached))
			return
		}
	}

	bookings, total, err := h.svc.ListBookings(r.Context(), id.TenantID, studentID, limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := listResponse[bookingItem]{
		Data:  toBookingItems(bookings),
		Total: total,
		Limit: limit,
		Page:  offset/limit + 1,
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(r.Context(), key, string(raw), listCacheTTL); err != nil {
			h.logger.Warn("list cache set failed", "err", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// ListWeekly returns the tenant's non-cancelled bookings overlapping the
// half-open week starting at ?weekStart (YYYY-MM-DD).
func (h *SchedulingHandler) ListWeekly(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	weekStartRaw := strings.TrimSpace(r.URL.Query().Get("weekStart"))
	weekStart, err := time.ParseInLocation("2006-01-02", weekStartRaw, time.UTC)
	if err != nil {
		writeValidation(w, r, h.logger, "weekStart must be YYYY-MM-DD")
		return
	}

	bookings, err := h.svc.ListWeekly(r.Context(), id.TenantID, weekStart)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": toBookingItems(bookings)})
}

func listCacheKey(tenantID, scope string, limit, offset int) string {
	return "bookings:" + tenantID + ":" + scope + ":" + strconv.Itoa(limit) + ":" + strconv.Itoa(offset)
}

func (h *SchedulingHandler) invalidateListings(r *http.Request, tenantID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.DeleteByPrefix(r.Context(), "bookings:"+tenantID+":"); err != nil {
		h.logger.Warn("list cache invalidation failed", "tenant_id", tenantID, "err", err)
	}
}
