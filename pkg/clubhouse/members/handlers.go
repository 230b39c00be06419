package members

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stridelab/clubhouse/pkg/clubhouse/models"
)

const defaultPageSize = 100

// Handler exposes the membership ledger over HTTP
type Handler struct {
	svc *Service
}

// NewHandler creates a new members handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// JoinRequest represents a request to join a club
type JoinRequest struct {
	User      models.UserSummary `json:"user" binding:"required"`
	JoinedVia string             `json:"joinedVia"`
}

// MembershipStatusResponse reports whether a user is an active member
type MembershipStatusResponse struct {
	ClubID   string `json:"clubId"`
	UserID   string `json:"userId"`
	IsMember bool   `json:"isMember"`
}

// MemberListResponse is one page of a club's active members
type MemberListResponse struct {
	Members    []models.ClubMembership `json:"members"`
	NextCursor string                  `json:"nextCursor,omitempty"`
}

// Join adds a user to a club (or reactivates their membership)
func (h *Handler) Join(c *gin.Context) {
	clubID := c.Param("id")

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.User.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user.id is required"})
		return
	}
	if req.JoinedVia == "" {
		req.JoinedVia = models.JoinedViaManual
	}

	membership, err := h.svc.Join(c.Request.Context(), clubID, req.User, req.JoinedVia)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join club"})
		return
	}

	c.JSON(http.StatusOK, membership)
}

// Leave marks a user's membership inactive
func (h *Handler) Leave(c *gin.Context) {
	clubID := c.Param("id")
	userID := c.Param("userId")

	err := h.svc.Leave(c.Request.Context(), clubID, userID)
	if err != nil {
		if errors.Is(err, ErrNoMembership) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Membership not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave club"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// GetMember reports a user's membership status in a club
func (h *Handler) GetMember(c *gin.Context) {
	clubID := c.Param("id")
	userID := c.Param("userId")

	isMember, err := h.svc.IsMember(c.Request.Context(), clubID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check membership"})
		return
	}

	c.JSON(http.StatusOK, MembershipStatusResponse{
		ClubID:   clubID,
		UserID:   userID,
		IsMember: isMember,
	})
}

// ListMembers returns a page of a club's active members
func (h *Handler) ListMembers(c *gin.Context) {
	clubID := c.Param("id")
	cursor := c.Query("cursor")

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	memberships, next, err := h.svc.ListActiveMembers(c.Request.Context(), clubID, cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list members"})
		return
	}

	c.JSON(http.StatusOK, MemberListResponse{Members: memberships, NextCursor: next})
}

// ListClubsForUser returns every club the user is an active member of
func (h *Handler) ListClubsForUser(c *gin.Context) {
	userID := c.Param("userId")

	clubs, err := h.svc.ListClubsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list clubs"})
		return
	}

	c.JSON(http.StatusOK, clubs)
}

// RegisterRoutes registers member routes on a clubs route group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/members", h.Join)
	rg.GET("/:id/members", h.ListMembers)
	rg.GET("/:id/members/:userId", h.GetMember)
	rg.DELETE("/:id/members/:userId", h.Leave)
}

// RegisterUserRoutes registers the user-facing lookup on a users route group
func (h *Handler) RegisterUserRoutes(rg *gin.RouterGroup) {
	rg.GET("/:userId/clubs", h.ListClubsForUser)
}
