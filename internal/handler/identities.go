package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"classattend/internal/face"
	"classattend/internal/faceclient"
	"classattend/internal/identity"
)

// ---------- Enrollment ----------

type enrollRequest struct {
	Email          string    `json:"email"`
	FullName       string    `json:"fullName" binding:"required"`
	Role           string    `json:"role" binding:"required"`
	StudentID      string    `json:"studentId"`
	FacultyID      string    `json:"facultyId"`
	FaceDescriptor []float32 `json:"faceDescriptor"`
	ImageURL       string    `json:"imageUrl"`
}

// Enroll registers the authenticated caller with a face descriptor.
func (h *Handler) Enroll(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = p.Email
	}

	id, err := h.identities.Enroll(c.Request.Context(), identity.EnrollRequest{
		UID:        p.UID,
		Email:      email,
		FullName:   req.FullName,
		Role:       identity.Role(req.Role),
		StudentID:  req.StudentID,
		FacultyID:  req.FacultyID,
		Descriptor: face.Descriptor(req.FaceDescriptor),
		ImageURL:   req.ImageURL,
	})
	if err != nil {
		writeIdentityError(c, p.UID, err)
		return
	}
	c.JSON(http.StatusCreated, id.Profile())
}

type descriptorRequest struct {
	FaceDescriptor []float32 `json:"faceDescriptor"`
	ImageURL       string    `json:"imageUrl"`
}

// ReEnroll replaces the caller's descriptor.
func (h *Handler) ReEnroll(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req descriptorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err := h.identities.ReEnroll(c.Request.Context(), p.UID, face.Descriptor(req.FaceDescriptor), req.ImageURL); err != nil {
		writeIdentityError(c, p.UID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Face descriptor updated."})
}

func writeIdentityError(c *gin.Context, uid string, err error) {
	switch {
	case errors.Is(err, identity.ErrAlreadyEnrolled):
		c.JSON(http.StatusConflict, gin.H{"message": "User already registered."})
	case errors.Is(err, identity.ErrSecondaryIDTaken):
		c.JSON(http.StatusConflict, gin.H{"message": "Student or faculty ID is already registered."})
	case errors.Is(err, identity.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
	case errors.Is(err, identity.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, faceclient.ErrNoFace):
		c.JSON(http.StatusBadRequest, gin.H{"message": "No face detected in the image."})
	case errors.Is(err, faceclient.ErrMultipleFaces):
		c.JSON(http.StatusBadRequest, gin.H{"message": "More than one face detected in the image."})
	default:
		log.Printf("identity write for %s failed: %v", uid, err)
		internalError(c)
	}
}

// ---------- Profiles ----------

// Me returns the caller's public profile.
func (h *Handler) Me(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, err := h.identities.Get(c.Request.Context(), p.UID)
	if errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if err != nil {
		log.Printf("profile for %s failed: %v", p.UID, err)
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, id.Profile())
}

// Profile returns any enrolled identity's profile to a teacher.
func (h *Handler) Profile(c *gin.Context) {
	uid := c.Param("uid")
	id, err := h.identities.Get(c.Request.Context(), uid)
	if errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if err != nil {
		log.Printf("profile for %s failed: %v", uid, err)
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, id.Profile())
}

// Students lists enrolled students for a teacher.
func (h *Handler) Students(c *gin.Context) {
	students, err := h.identities.Students(c.Request.Context())
	if err != nil {
		log.Printf("list students failed: %v", err)
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, students)
}
