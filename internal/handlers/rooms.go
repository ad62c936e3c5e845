package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/winterden/secret-santa/internal/logger"
	"github.com/winterden/secret-santa/internal/middleware"
	"github.com/winterden/secret-santa/internal/models"
	"github.com/winterden/secret-santa/internal/relay"
	"github.com/winterden/secret-santa/internal/rooms"
	"github.com/winterden/secret-santa/internal/store"
)

// requestTimeout caps each mutating operation, including its transaction
// retries. The store guarantees no partial write becomes visible when the
// deadline fires mid-operation.
const requestTimeout = 5 * time.Second

// Handler exposes the room service over HTTP and WebSocket.
type Handler struct {
	service   *rooms.Service
	relay     *relay.Relay
	jwtSecret string
}

// New wires the handler set.
func New(service *rooms.Service, r *relay.Relay, jwtSecret string) *Handler {
	return &Handler{service: service, relay: r, jwtSecret: jwtSecret}
}

// Register mounts all routes on the router.
func (h *Handler) Register(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := middleware.JWTAuth(h.jwtSecret)

	api := router.Group("/api")
	{
		api.POST("/auth/login", h.Login)

		api.GET("/profile", auth, h.GetProfile)
		api.PUT("/profile", auth, h.SaveProfile)

		api.POST("/rooms", auth, h.CreateRoom)
		api.GET("/rooms/:roomId", h.GetRoom)
		api.POST("/rooms/:roomId/join", auth, h.JoinRoom)
		api.PUT("/rooms/:roomId/wishlist", auth, h.UpdateWishlist)
		api.POST("/rooms/:roomId/draw", auth, h.Draw)
	}

	ws := router.Group("/ws")
	{
		ws.GET("/rooms", auth, h.StreamRooms)
	}
}

// CreateRoom creates a room owned by the caller, seeding the owner's member
// entry from the request or the stored profile.
func (h *Handler) CreateRoom(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": rooms.ErrInvalidName.Error()})
		return
	}

	ctx, cancel := opContext(c)
	defer cancel()

	ownerName := req.OwnerName
	if ownerName == "" {
		if p, err := h.service.Profile(ctx, userID); err == nil {
			ownerName = p.Name
		}
	}

	room, err := h.service.CreateRoom(ctx, userID, req.Name, ownerName)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// GetRoom returns a room snapshot by id. Public: knowing the id is the
// invitation.
func (h *Handler) GetRoom(c *gin.Context) {
	ctx, cancel := opContext(c)
	defer cancel()

	room, err := h.service.Room(ctx, c.Param("roomId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// JoinRoom adds the caller to the room, defaulting the display name to the
// stored profile.
func (h *Handler) JoinRoom(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	var req models.JoinRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	ctx, cancel := opContext(c)
	defer cancel()

	displayName := req.DisplayName
	if displayName == "" {
		if p, err := h.service.Profile(ctx, userID); err == nil {
			displayName = p.Name
		}
	}

	room, err := h.service.JoinRoom(ctx, c.Param("roomId"), userID, displayName)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// UpdateWishlist replaces the caller's wishlist text.
func (h *Handler) UpdateWishlist(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	var req models.WishlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx, cancel := opContext(c)
	defer cancel()

	room, err := h.service.UpdateWishlist(ctx, c.Param("roomId"), userID, req.Wishlist)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// Draw runs the one-time assignment. Owner only.
func (h *Handler) Draw(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	ctx, cancel := opContext(c)
	defer cancel()

	room, err := h.service.Draw(ctx, c.Param("roomId"), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// writeError maps the error taxonomy onto HTTP statuses. Business rule
// violations surface verbatim; infrastructure failures are logged and get a
// generic body.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rooms.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, rooms.ErrNotMember), errors.Is(err, rooms.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, rooms.ErrAlreadyDrawn):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, rooms.ErrInsufficientParticipants),
		errors.Is(err, rooms.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrContention):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "room is busy, try again"})
	case errors.Is(err, store.ErrUnavailable):
		logger.Error("store unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "operation timed out"})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func opContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}
