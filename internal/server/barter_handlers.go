package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/barter"
	"github.com/gin-gonic/gin"
)

type createBarterPayload struct {
	ListingID        string  `json:"listing_id"`
	OfferDescription string  `json:"offer_description"`
	OfferValue       float64 `json:"offer_value"`
	OfferType        string  `json:"offer_type"`
}

type respondPayload struct {
	Accept *bool `json:"accept"`
}

type completePayload struct {
	Code string `json:"code"`
}

type listingSnapshotView struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	EstimatedValue float64 `json:"estimated_value"`
}

// barterView is a request as seen by one participant. Only the viewer's own
// confirmation code is included; it is the one they read out to the other party.
type barterView struct {
	ID                    string              `json:"id"`
	ListingID             string              `json:"listing_id"`
	RequesterID           string              `json:"requester_id"`
	RequesterName         string              `json:"requester_name"`
	OwnerID               string              `json:"owner_id"`
	OwnerName             string              `json:"owner_name"`
	OfferDescription      string              `json:"offer_description"`
	OfferValue            float64             `json:"offer_value"`
	OfferType             string              `json:"offer_type"`
	Status                string              `json:"status"`
	Role                  string              `json:"role"`
	ConfirmationCode      string              `json:"confirmation_code,omitempty"`
	OwnerAcknowledged     bool                `json:"owner_acknowledged"`
	RequesterAcknowledged bool                `json:"requester_acknowledged"`
	OwnerConfirmed        bool                `json:"owner_confirmed"`
	RequesterConfirmed    bool                `json:"requester_confirmed"`
	Version               int64               `json:"version"`
	Listing               listingSnapshotView `json:"listing"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

type barterListPayload struct {
	Sent     []barterView `json:"sent"`
	Received []barterView `json:"received"`
}

func newBarterView(req *barter.Request, viewerID string) barterView {
	view := barterView{
		ID:                    req.ID,
		ListingID:             req.ListingID,
		RequesterID:           req.RequesterID,
		RequesterName:         req.RequesterName,
		OwnerID:               req.OwnerID,
		OwnerName:             req.OwnerName,
		OfferDescription:      req.OfferDescription,
		OfferValue:            req.OfferValue,
		OfferType:             string(req.OfferType),
		Status:                string(req.Status),
		OwnerAcknowledged:     req.OwnerAcknowledged,
		RequesterAcknowledged: req.RequesterAcknowledged,
		OwnerConfirmed:        req.OwnerConfirmed,
		RequesterConfirmed:    req.RequesterConfirmed,
		Version:               req.Version,
		Listing: listingSnapshotView{
			ID:             req.Listing.ID,
			Title:          req.Listing.Title,
			Description:    req.Listing.Description,
			Category:       req.Listing.Category,
			EstimatedValue: req.Listing.EstimatedValue,
		},
		CreatedAt: req.CreatedAt,
		UpdatedAt: req.UpdatedAt,
	}
	if role, ok := req.RoleOf(viewerID); ok {
		view.Role = string(role)
		view.ConfirmationCode = req.CodeFor(role)
	}
	return view
}

func newBarterViews(requests []barter.Request, viewerID string) []barterView {
	views := make([]barterView, 0, len(requests))
	for i := range requests {
		views = append(views, newBarterView(&requests[i], viewerID))
	}
	return views
}

func (h *httpHandler) handleCreateBarter(c *gin.Context) {
	var payload createBarterPayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.ListingID) == "" {
		respondInvalidRequest(c)
		return
	}
	actor := actorFrom(c)
	req, err := h.barters.CreateRequest(c.Request.Context(), actor, barter.CreateRequestInput{
		ListingID:        strings.TrimSpace(payload.ListingID),
		OfferDescription: payload.OfferDescription,
		OfferValue:       payload.OfferValue,
		OfferType:        payload.OfferType,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newBarterView(req, actor.ID))
}

func (h *httpHandler) handleListBarters(c *gin.Context) {
	actor := actorFrom(c)
	sent, err := h.barters.ListForRequester(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	received, err := h.barters.ListForOwner(c.Request.Context(), actor.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, barterListPayload{
		Sent:     newBarterViews(sent, actor.ID),
		Received: newBarterViews(received, actor.ID),
	})
}

func (h *httpHandler) handleGetBarter(c *gin.Context) {
	actor := actorFrom(c)
	req, err := h.barters.GetRequest(c.Request.Context(), actor, c.Param("id"))
	h.writeBarter(c, req, err)
}

func (h *httpHandler) handleRespond(c *gin.Context) {
	var payload respondPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Accept == nil {
		respondInvalidRequest(c)
		return
	}
	actor := actorFrom(c)
	req, err := h.barters.RespondToRequest(c.Request.Context(), actor, c.Param("id"), *payload.Accept)
	h.writeBarter(c, req, err)
}

func (h *httpHandler) handleAcknowledge(c *gin.Context) {
	actor := actorFrom(c)
	req, err := h.barters.RequesterAcknowledge(c.Request.Context(), actor, c.Param("id"))
	h.writeBarter(c, req, err)
}

func (h *httpHandler) handleConfirm(c *gin.Context) {
	actor := actorFrom(c)
	req, err := h.barters.MarkPartyConfirmed(c.Request.Context(), actor, c.Param("id"))
	h.writeBarter(c, req, err)
}

func (h *httpHandler) handleComplete(c *gin.Context) {
	var payload completePayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Code) == "" {
		respondInvalidRequest(c)
		return
	}
	actor := actorFrom(c)
	req, err := h.barters.CompleteBarter(c.Request.Context(), actor, c.Param("id"), payload.Code)
	h.writeBarter(c, req, err)
}

func (h *httpHandler) handleDecline(c *gin.Context) {
	actor := actorFrom(c)
	req, err := h.barters.DeclineBarter(c.Request.Context(), actor, c.Param("id"))
	h.writeBarter(c, req, err)
}

func (h *httpHandler) writeBarter(c *gin.Context, req *barter.Request, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBarterView(req, actorFrom(c).ID))
}
