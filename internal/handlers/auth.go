package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/winterden/secret-santa/internal/middleware"
	"github.com/winterden/secret-santa/internal/models"
	"github.com/winterden/secret-santa/internal/rooms"
)

const tokenTTL = 24 * time.Hour

// Login signs a caller in. Identity here is anonymous-auth shaped: a caller
// without an id gets a fresh opaque one, and presenting the same id again
// resumes that identity. A display name in the request is stored as the
// profile.
func (h *Handler) Login(c *gin.Context) {
	// Body is optional: an empty POST is a plain anonymous sign-in.
	var req models.LoginRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	userID := req.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	if req.Name != "" {
		if _, err := h.service.SaveProfile(c.Request.Context(), userID, req.Name); err != nil {
			h.writeError(c, err)
			return
		}
	}

	claims := middleware.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{Token: signed, UserID: userID})
}

// GetProfile returns the caller's stored display name.
func (h *Handler) GetProfile(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	p, err := h.service.Profile(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// SaveProfile sets the caller's display name.
func (h *Handler) SaveProfile(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	var req models.SaveProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": rooms.ErrInvalidName.Error()})
		return
	}

	p, err := h.service.SaveProfile(c.Request.Context(), userID, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
