package clubs

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stridelab/clubhouse/pkg/clubhouse/cache"
	"github.com/stridelab/clubhouse/pkg/clubhouse/docstore"
	"github.com/stridelab/clubhouse/pkg/clubhouse/members"
	"github.com/stridelab/clubhouse/pkg/clubhouse/models"
)

// Handler exposes the club registry over HTTP
type Handler struct {
	svc    *Service
	ledger *members.Service
	counts *cache.MemberCounts
}

// NewHandler creates a new clubs handler. counts may be nil when no cache is
// configured.
func NewHandler(svc *Service, ledger *members.Service, counts *cache.MemberCounts) *Handler {
	return &Handler{svc: svc, ledger: ledger, counts: counts}
}

// CreateClubRequest represents a request to create a club
type CreateClubRequest struct {
	Creator       models.UserSummary `json:"creator" binding:"required"`
	Name          string             `json:"name" binding:"required"`
	Description   string             `json:"description"`
	CoverImageURL string             `json:"coverImageUrl"`
	RoundIDs      []string           `json:"roundIds"`
}

// UpdateClubRequest represents a request to update a club's mutable fields
type UpdateClubRequest struct {
	Name          string `json:"name" binding:"required"`
	Description   string `json:"description"`
	CoverImageURL string `json:"coverImageUrl"`
}

// LinkRoundRequest represents a request to link a round to a club
type LinkRoundRequest struct {
	RoundID string `json:"roundId" binding:"required"`
}

// GetOrCreateRequest represents a get-or-create request for a creator's club
type GetOrCreateRequest struct {
	Creator models.UserSummary `json:"creator" binding:"required"`
	RoundID string             `json:"roundId"`
}

// MemberCountResponse is the fast member-count read
type MemberCountResponse struct {
	ClubID      string `json:"clubId"`
	MemberCount int64  `json:"memberCount"`
}

// Create creates a club and records the creator's founding membership
func (h *Handler) Create(c *gin.Context) {
	var req CreateClubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Creator.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "creator.id is required"})
		return
	}

	if _, err := h.svc.GetByCreator(c.Request.Context(), req.Creator.ID); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Creator already has a club"})
		return
	} else if !errors.Is(err, docstore.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing club"})
		return
	}

	club, err := h.svc.Create(c.Request.Context(), CreateClubInput{
		Creator:        req.Creator,
		Name:           req.Name,
		Description:    req.Description,
		CoverImageURL:  req.CoverImageURL,
		LinkedRoundIDs: req.RoundIDs,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create club"})
		return
	}

	// The founder record is a separate, non-transactional write. The club
	// exists either way, so a failure here is logged, not surfaced.
	if _, err := h.ledger.AddFounder(c.Request.Context(), club.ID, req.Creator, models.JoinedViaManual); err != nil {
		log.Printf("record founder membership for club %s: %v", club.ID, err)
	}

	c.JSON(http.StatusCreated, club)
}

// Get returns a club by id
func (h *Handler) Get(c *gin.Context) {
	club, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Club not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch club"})
		return
	}
	c.JSON(http.StatusOK, club)
}

// GetByCreator returns the club owned by a creator
func (h *Handler) GetByCreator(c *gin.Context) {
	club, err := h.svc.GetByCreator(c.Request.Context(), c.Param("creatorId"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Club not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch club"})
		return
	}
	c.JSON(http.StatusOK, club)
}

// Update replaces a club's mutable fields
func (h *Handler) Update(c *gin.Context) {
	var req UpdateClubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	club, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Club not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch club"})
		return
	}

	club.Name = req.Name
	club.Description = req.Description
	club.CoverImageURL = req.CoverImageURL
	if err := h.svc.Update(c.Request.Context(), club); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update club"})
		return
	}

	c.JSON(http.StatusOK, club)
}

// LinkRound adds a round to a club's linked set
func (h *Handler) LinkRound(c *gin.Context) {
	var req LinkRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.LinkRound(c.Request.Context(), c.Param("id"), req.RoundID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Club not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to link round"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Round linked"})
}

// GetOrCreate returns the creator's club, creating it with defaults first if
// needed
func (h *Handler) GetOrCreate(c *gin.Context) {
	var req GetOrCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Creator.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "creator.id is required"})
		return
	}
	if creatorID := c.Param("creatorId"); creatorID != "" && creatorID != req.Creator.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "creator.id does not match URL"})
		return
	}

	club, created, err := h.svc.GetOrCreate(c.Request.Context(), req.Creator, req.RoundID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get or create club"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		via := models.JoinedViaManual
		if req.RoundID != "" {
			via = req.RoundID
		}
		if _, err := h.ledger.AddFounder(c.Request.Context(), club.ID, req.Creator, via); err != nil {
			log.Printf("record founder membership for club %s: %v", club.ID, err)
		}
	}

	c.JSON(status, club)
}

// GetMemberCount serves the cached member count, falling back to the club
// document and refilling the cache on a miss
func (h *Handler) GetMemberCount(c *gin.Context) {
	clubID := c.Param("id")
	ctx := c.Request.Context()

	if count, ok, err := h.counts.Get(ctx, clubID); err == nil && ok {
		c.JSON(http.StatusOK, MemberCountResponse{ClubID: clubID, MemberCount: count})
		return
	} else if err != nil {
		log.Printf("read member count cache for club %s: %v", clubID, err)
	}

	club, err := h.svc.Get(ctx, clubID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Club not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch club"})
		return
	}

	if err := h.counts.Set(ctx, clubID, int64(club.MemberCount)); err != nil {
		log.Printf("refill member count cache for club %s: %v", clubID, err)
	}
	c.JSON(http.StatusOK, MemberCountResponse{ClubID: clubID, MemberCount: int64(club.MemberCount)})
}

// RegisterRoutes registers club routes on a clubs route group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.POST("/:id/rounds", h.LinkRound)
	rg.GET("/:id/member-count", h.GetMemberCount)
}

// RegisterCreatorRoutes registers the creator-scoped lookups on a creators
// route group
func (h *Handler) RegisterCreatorRoutes(rg *gin.RouterGroup) {
	rg.GET("/:creatorId/club", h.GetByCreator)
	rg.PUT("/:creatorId/club", h.GetOrCreate)
}
