package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"classattend/internal/attendance"
	"classattend/internal/face"
	"classattend/internal/identity"
)

// ---------- Verify ----------

type verifyRequest struct {
	CandidateDescriptor []float32 `json:"candidateDescriptor"`
	SessionID           string    `json:"sessionId"`
}

// Verify matches the candidate descriptor against enrolled faces and marks
// the matched identity present in the session.
func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	res, err := h.attendance.Verify(c.Request.Context(), attendance.VerifyRequest{
		Descriptor: face.Descriptor(req.CandidateDescriptor),
		SessionID:  req.SessionID,
	})
	if err != nil {
		writeVerifyError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  fmt.Sprintf("Face verified and attendance marked for %s. Distance: %.4f", res.User.FullName, res.Distance),
		"user":     res.User,
		"distance": res.Distance,
	})
}

// Identify reports who a descriptor belongs to without marking attendance.
func (h *Handler) Identify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	res, err := h.attendance.Identify(c.Request.Context(), face.Descriptor(req.CandidateDescriptor))
	if err != nil {
		writeVerifyError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  fmt.Sprintf("Face verified for %s. Distance: %.4f", res.User.FullName, res.Distance),
		"user":     res.User,
		"distance": res.Distance,
	})
}

// writeBindError blames the descriptor only when it is the field that failed
// to decode.
func writeBindError(c *gin.Context, err error) {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && strings.HasPrefix(typeErr.Field, "candidateDescriptor") {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or missing candidate face descriptor."})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body."})
}

func writeVerifyError(c *gin.Context, err error) {
	var (
		outside  *attendance.OutsideWindowError
		rejected *attendance.NotRecognizedError
	)
	switch {
	case errors.Is(err, attendance.ErrMissingSession):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing session ID for attendance marking."})
	case errors.Is(err, attendance.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid or missing candidate face descriptor."})
	case errors.Is(err, attendance.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Session not found."})
	case errors.As(err, &outside):
		c.JSON(http.StatusBadRequest, gin.H{
			"message":      "Attendance can only be marked during the scheduled session time.",
			"sessionStart": outside.Start.UTC().Format(time.RFC3339),
			"sessionEnd":   outside.End.UTC().Format(time.RFC3339),
			"currentTime":  outside.Now.UTC().Format(time.RFC3339),
		})
	case errors.Is(err, attendance.ErrNoEnrolledUsers):
		c.JSON(http.StatusNotFound, gin.H{"message": "No registered faces found in the database."})
	case errors.As(err, &rejected):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Face not recognized. Please register or try again.",
			"details": gin.H{
				"lowestDistance": rejected.Distance,
				"threshold":      rejected.Threshold,
			},
		})
	default:
		log.Printf("verify failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error during verification."})
	}
}

// ---------- Summary ----------

// MySummary returns the caller's per-subject attendance.
func (h *Handler) MySummary(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	h.writeSummary(c, p.UID, "")
}

// StudentSummary returns a student's per-subject attendance to a teacher.
func (h *Handler) StudentSummary(c *gin.Context) {
	h.writeSummary(c, c.Param("uid"), identity.RoleStudent)
}

// writeSummary reports uid's attendance once uid is known to be enrolled,
// with the given role when want is set.
func (h *Handler) writeSummary(c *gin.Context, uid string, want identity.Role) {
	who, err := h.identities.Get(c.Request.Context(), uid)
	if errors.Is(err, identity.ErrNotFound) || (err == nil && want != "" && who.Role != want) {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if err != nil {
		log.Printf("summary lookup for %s failed: %v", uid, err)
		internalError(c)
		return
	}

	summary, err := h.attendance.Summary(c.Request.Context(), who.UID)
	if err != nil {
		log.Printf("summary for %s failed: %v", uid, err)
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ---------- Session attendance ----------

// Roster lists the students marked present in a session.
func (h *Handler) Roster(c *gin.Context) {
	roster, err := h.attendance.Roster(c.Request.Context(), c.Param("id"))
	if errors.Is(err, attendance.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Session not found."})
		return
	}
	if err != nil {
		log.Printf("roster for %s failed: %v", c.Param("id"), err)
		internalError(c)
		return
	}
	if roster == nil {
		roster = []attendance.RosterEntry{}
	}
	c.JSON(http.StatusOK, roster)
}

// MyStatus returns the caller's record for a session, absent by default.
func (h *Handler) MyStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	sess, ok := h.loadSession(c)
	if !ok {
		return
	}
	rec, err := h.attendance.Status(c.Request.Context(), sess.ID, p.UID)
	if err != nil {
		log.Printf("status for %s in %s failed: %v", p.UID, sess.ID, err)
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// SessionEvents returns the audit trail written by the worker.
func (h *Handler) SessionEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Event log is not enabled."})
		return
	}
	sess, ok := h.loadSession(c)
	if !ok {
		return
	}
	events, err := h.events.ListEvents(c.Request.Context(), sess.ID, 100)
	if err != nil {
		log.Printf("events for %s failed: %v", sess.ID, err)
		internalError(c)
		return
	}
	if events == nil {
		events = []attendance.Event{}
	}
	c.JSON(http.StatusOK, events)
}
