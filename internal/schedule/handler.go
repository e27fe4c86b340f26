package schedule

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dobrv4er/woomfit/internal/auth"
	"github.com/dobrv4er/woomfit/internal/membership"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetDaySchedule — групповое расписание на день для сайта; дата в формате
// 2006-01-02, локация обязательна.
func (h *Handler) GetDaySchedule(c *gin.Context) {
	location := c.Query("location")
	if location == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location is required"})
		return
	}

	day := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	sessions, err := h.svc.repo.ListDay(c.Request.Context(), location, day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load schedule"})
		return
	}

	c.JSON(http.StatusOK, sessions)
}

type bookRequest struct {
	SessionID    int `json:"session_id" binding:"required"`
	MembershipID int `json:"membership_id" binding:"required"`
}

func (h *Handler) Book(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.svc.BookWithMembership(c.Request.Context(), userID, req.SessionID, req.MembershipID)
	if err != nil {
		h.respondBookingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) JoinWaitlist(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	sessionID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	booking, err := h.svc.JoinWaitlist(c.Request.Context(), userID, sessionID)
	if err != nil {
		h.respondBookingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

func (h *Handler) Cancel(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	if err := h.svc.Cancel(c.Request.Context(), userID, bookingID); err != nil {
		h.respondBookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "booking canceled"})
}

type acceptInviteRequest struct {
	MembershipID int `json:"membership_id" binding:"required"`
}

func (h *Handler) AcceptInvite(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var req acceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	booking, err := h.svc.AcceptInvite(c.Request.Context(), userID, bookingID, req.MembershipID)
	if err != nil {
		h.respondBookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *Handler) DeclineInvite(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	if err := h.svc.DeclineInvite(c.Request.Context(), userID, bookingID); err != nil {
		h.respondBookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "invite declined"})
}

func (h *Handler) ListMyBookings(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookings, err := h.svc.repo.ListUserBookings(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bookings"})
		return
	}

	c.JSON(http.StatusOK, bookings)
}

func (h *Handler) respondBookingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrBookingNotFound),
		errors.Is(err, membership.ErrMembershipNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrSessionFull), errors.Is(err, ErrAlreadyBooked),
		errors.Is(err, ErrCancellationWindow), errors.Is(err, ErrInviteExpired),
		errors.Is(err, ErrSeatsAvailable), errors.Is(err, membership.ErrNoVisitsLeft):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotYourBooking), errors.Is(err, ErrNotYourMembership):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotGroupSession), errors.Is(err, ErrSessionStarted),
		errors.Is(err, ErrMembershipIncompatible):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- admin ---

type createSessionRequest struct {
	WorkoutID   *int      `json:"workout_id"`
	Title       string    `json:"title" binding:"required"`
	Kind        string    `json:"kind" binding:"required,oneof=group personal"`
	ClientID    *int      `json:"client_id"`
	StartAt     time.Time `json:"start_at" binding:"required"`
	DurationMin int       `json:"duration_min" binding:"required,min=15,max=240"`
	Location    string    `json:"location" binding:"required"`
	TrainerID   int       `json:"trainer_id" binding:"required"`
	Capacity    int       `json:"capacity" binding:"required,min=1"`
}

func (h *Handler) AdminCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := &Session{
		WorkoutID:   req.WorkoutID,
		Title:       req.Title,
		Kind:        req.Kind,
		ClientID:    req.ClientID,
		StartAt:     req.StartAt,
		DurationMin: req.DurationMin,
		Location:    req.Location,
		TrainerID:   &req.TrainerID,
		Capacity:    req.Capacity,
	}

	created, err := h.svc.repo.CreateSession(c.Request.Context(), s)
	if err != nil {
		if errors.Is(err, ErrSessionConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, created)
}

type createTrainerRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) AdminCreateTrainer(c *gin.Context) {
	var req createTrainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.svc.repo.CreateTrainer(c.Request.Context(), req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create trainer"})
		return
	}

	c.JSON(http.StatusCreated, t)
}

type createWorkoutRequest struct {
	Name               string `json:"name" binding:"required"`
	Level              string `json:"level"`
	Description        string `json:"description"`
	DefaultDurationMin int    `json:"default_duration_min"`
	DefaultCapacity    int    `json:"default_capacity"`
}

func (h *Handler) AdminCreateWorkout(c *gin.Context) {
	var req createWorkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.DefaultDurationMin <= 0 {
		req.DefaultDurationMin = 50
	}
	if req.DefaultCapacity <= 0 {
		req.DefaultCapacity = 20
	}

	w, err := h.svc.repo.CreateWorkout(c.Request.Context(), &Workout{
		Name:               req.Name,
		Level:              req.Level,
		Description:        req.Description,
		DefaultDurationMin: req.DefaultDurationMin,
		DefaultCapacity:    req.DefaultCapacity,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create workout"})
		return
	}

	c.JSON(http.StatusCreated, w)
}

type attendanceRequest struct {
	Status string `json:"status" binding:"required,oneof=attended missed"`
}

// AdminMarkAttendance — отметка посещаемости тренером после занятия.
func (h *Handler) AdminMarkAttendance(c *gin.Context) {
	bookingID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}

	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.repo.MarkAttendance(c.Request.Context(), bookingID, req.Status); err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark attendance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "attendance marked"})
}
