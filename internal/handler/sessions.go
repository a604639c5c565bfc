package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/auth"
	"classattend/internal/session"
)

// ---------- Sessions ----------

type createSessionRequest struct {
	Subject   string   `json:"subject" binding:"required"`
	Date      string   `json:"date"`
	StartTime string   `json:"startTime" binding:"required"`
	EndTime   string   `json:"endTime" binding:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// CreateSession schedules a session owned by the calling teacher.
func (h *Handler) CreateSession(c *gin.Context) {
	owner, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		return
	}
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), session.CreateRequest{
		Subject:   req.Subject,
		FacultyID: owner.FacultyID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if errors.Is(err, session.ErrInvalid) {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err != nil {
		log.Printf("create session for %s failed: %v", owner.FacultyID, err)
		internalError(c)
		return
	}
	log.Printf("session %s (%s) created by %s", sess.ID, sess.Subject, owner.FacultyID)
	c.JSON(http.StatusCreated, sess)
}

// ListSessions returns sessions, newest first, optionally for one faculty id.
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context(), c.Query("facultyId"))
	if err != nil {
		log.Printf("list sessions failed: %v", err)
		internalError(c)
		return
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

// GetSession returns one session.
func (h *Handler) GetSession(c *gin.Context) {
	sess, ok := h.loadSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) loadSession(c *gin.Context) (*session.Session, bool) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Session not found."})
		return nil, false
	}
	if err != nil {
		log.Printf("load session %s failed: %v", c.Param("id"), err)
		internalError(c)
		return nil, false
	}
	return sess, true
}
