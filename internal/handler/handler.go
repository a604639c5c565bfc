// Package handler exposes the attendance, identity and session services over
// HTTP.
package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/identity"
	"classattend/internal/session"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) bool

type Handler struct {
	attendance *attendance.Service
	identities *identity.Service
	sessions   *session.Service
	events     attendance.EventLog // nil disables the audit route
	checks     map[string]HealthCheck
}

func New(att *attendance.Service, ids *identity.Service, sess *session.Service, events attendance.EventLog) *Handler {
	return &Handler{
		attendance: att,
		identities: ids,
		sessions:   sess,
		events:     events,
		checks:     make(map[string]HealthCheck),
	}
}

// AddHealthCheck includes a dependency in /healthz.
func (h *Handler) AddHealthCheck(name string, fn HealthCheck) {
	h.checks[name] = fn
}

// Register mounts every route on r. verifyLimit guards the public face
// endpoints; pass nil to leave them unlimited.
func (h *Handler) Register(r gin.IRouter, verifier auth.Verifier, verifyLimit gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")

	limited := func(next gin.HandlerFunc) []gin.HandlerFunc {
		if verifyLimit == nil {
			return []gin.HandlerFunc{next}
		}
		return []gin.HandlerFunc{verifyLimit, next}
	}
	v1.POST("/attendance/verify", limited(h.Verify)...)
	v1.POST("/identities/verify", limited(h.Identify)...)

	authed := v1.Group("", auth.Authenticate(verifier))
	teacher := auth.RequireRole(h.identities, identity.RoleTeacher)

	authed.GET("/attendance/summary", h.MySummary)
	authed.GET("/attendance/summary/:uid", teacher, h.StudentSummary)

	authed.POST("/identities", h.Enroll)
	authed.GET("/identities/me", h.Me)
	authed.PUT("/identities/me/descriptor", h.ReEnroll)
	authed.GET("/identities/:uid", teacher, h.Profile)
	authed.GET("/students", teacher, h.Students)

	authed.POST("/sessions", teacher, h.CreateSession)
	authed.GET("/sessions", h.ListSessions)
	authed.GET("/sessions/:id", h.GetSession)
	authed.GET("/sessions/:id/attendance", teacher, h.Roster)
	authed.GET("/sessions/:id/attendance/me", h.MyStatus)
	authed.GET("/sessions/:id/events", teacher, h.SessionEvents)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for _, name := range names {
		healthy := h.checks[name](c.Request.Context())
		body[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
}

func principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
	}
	return p, ok
}
