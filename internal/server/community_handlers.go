package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/community"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/listings"
	"github.com/gin-gonic/gin"
)

type createCommunityPayload struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

type joinCommunityPayload struct {
	Code string `json:"code"`
}

type createListingPayload struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	EstimatedValue float64 `json:"estimated_value"`
	Availability   string  `json:"availability"`
}

func (h *httpHandler) handleCreateCommunity(c *gin.Context) {
	var payload createCommunityPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondInvalidRequest(c)
		return
	}
	created, err := h.communities.CreateCommunity(c.Request.Context(), actorFrom(c), community.CreateCommunityInput{
		Name:        payload.Name,
		Location:    payload.Location,
		Description: payload.Description,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) handleListCommunities(c *gin.Context) {
	communities, err := h.communities.ListUserCommunities(c.Request.Context(), actorFrom(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"communities": communities})
}

func (h *httpHandler) handleJoinCommunity(c *gin.Context) {
	var payload joinCommunityPayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Code) == "" {
		respondInvalidRequest(c)
		return
	}
	joined, err := h.communities.JoinByCode(c.Request.Context(), actorFrom(c), payload.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, joined)
}

func (h *httpHandler) handleListMembers(c *gin.Context) {
	members, err := h.communities.ListMembers(c.Request.Context(), c.Param("id"), actorFrom(c).ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *httpHandler) handleRemoveMember(c *gin.Context) {
	err := h.communities.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("userID"), actorFrom(c).ID)
	h.writeNoContent(c, err)
}

func (h *httpHandler) handlePromote(c *gin.Context) {
	err := h.communities.PromoteToCoadmin(c.Request.Context(), c.Param("id"), c.Param("userID"), actorFrom(c).ID)
	h.writeNoContent(c, err)
}

func (h *httpHandler) handleDemote(c *gin.Context) {
	err := h.communities.DemoteCoadmin(c.Request.Context(), c.Param("id"), c.Param("userID"), actorFrom(c).ID)
	h.writeNoContent(c, err)
}

func (h *httpHandler) handleCreateListing(c *gin.Context) {
	var payload createListingPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondInvalidRequest(c)
		return
	}
	listing, err := h.listings.Create(c.Request.Context(), actorFrom(c), listings.CreateInput{
		CommunityID:    c.Param("id"),
		Title:          payload.Title,
		Description:    payload.Description,
		Category:       payload.Category,
		EstimatedValue: payload.EstimatedValue,
		Availability:   payload.Availability,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

func (h *httpHandler) handleListListings(c *gin.Context) {
	active, err := h.listings.ListActive(c.Request.Context(), actorFrom(c).ID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": active})
}

func (h *httpHandler) handleDeleteListing(c *gin.Context) {
	err := h.listings.Delete(c.Request.Context(), actorFrom(c).ID, c.Param("id"))
	h.writeNoContent(c, err)
}

func (h *httpHandler) writeNoContent(c *gin.Context, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
