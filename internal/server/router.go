package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/barter"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/community"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/listings"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	actorContextKey          = "swapcircle_actor"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingActorResolver    = errors.New("actor resolver dependency required")
	errMissingBarterService    = errors.New("barter service dependency required")
	errMissingCommunityService = errors.New("community service dependency required")
	errMissingListingsService  = errors.New("listings service dependency required")
	errMissingNotifications    = errors.New("notifications service dependency required")
	errMissingRealtime         = errors.New("realtime subscriber dependency required")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type ActorResolver interface {
	ResolveActor(ctx context.Context, claims auth.SessionClaims) (users.Actor, error)
}

type RealtimeSubscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan realtime.Message, func())
}

type Dependencies struct {
	Sessions          SessionValidator
	Actors            ActorResolver
	BarterService     *barter.Service
	CommunityService  *community.Service
	ListingsService   *listings.Service
	Notifications     *notifications.Service
	Realtime          RealtimeSubscriber
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errMissingSessionValidator
	case deps.Actors == nil:
		return nil, errMissingActorResolver
	case deps.BarterService == nil:
		return nil, errMissingBarterService
	case deps.CommunityService == nil:
		return nil, errMissingCommunityService
	case deps.ListingsService == nil:
		return nil, errMissingListingsService
	case deps.Notifications == nil:
		return nil, errMissingNotifications
	case deps.Realtime == nil:
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:      deps.Sessions,
		actors:        deps.Actors,
		barters:       deps.BarterService,
		communities:   deps.CommunityService,
		listings:      deps.ListingsService,
		notifications: deps.Notifications,
		realtime:      deps.Realtime,
		heartbeat:     heartbeat,
		logger:        logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.POST("/communities", handler.handleCreateCommunity)
	protected.GET("/communities", handler.handleListCommunities)
	protected.POST("/communities/join", handler.handleJoinCommunity)
	protected.GET("/communities/:id/members", handler.handleListMembers)
	protected.DELETE("/communities/:id/members/:userID", handler.handleRemoveMember)
	protected.POST("/communities/:id/members/:userID/promote", handler.handlePromote)
	protected.POST("/communities/:id/members/:userID/demote", handler.handleDemote)
	protected.POST("/communities/:id/listings", handler.handleCreateListing)
	protected.GET("/communities/:id/listings", handler.handleListListings)
	protected.DELETE("/listings/:id", handler.handleDeleteListing)

	protected.POST("/barters", handler.handleCreateBarter)
	protected.GET("/barters", handler.handleListBarters)
	protected.GET("/barters/:id", handler.handleGetBarter)
	protected.POST("/barters/:id/respond", handler.handleRespond)
	protected.POST("/barters/:id/acknowledge", handler.handleAcknowledge)
	protected.POST("/barters/:id/confirm", handler.handleConfirm)
	protected.POST("/barters/:id/complete", handler.handleComplete)
	protected.POST("/barters/:id/decline", handler.handleDecline)

	protected.GET("/notifications", handler.handleListNotifications)
	protected.POST("/notifications/read-all", handler.handleMarkAllRead)
	protected.POST("/notifications/:id/read", handler.handleMarkRead)

	protected.GET("/events/stream", handler.handleEventStream)

	return router, nil
}

type httpHandler struct {
	sessions      SessionValidator
	actors        ActorResolver
	barters       *barter.Service
	communities   *community.Service
	listings      *listings.Service
	notifications *notifications.Service
	realtime      RealtimeSubscriber
	heartbeat     time.Duration
	logger        *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	actor, err := h.actors.ResolveActor(c.Request.Context(), claims)
	if err != nil {
		h.logger.Warn("actor resolution failed", zap.String("user_id", claims.UserID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(actorContextKey, actor)
	c.Next()
}

func actorFrom(c *gin.Context) users.Actor {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return users.Actor{}
	}
	actor, _ := value.(users.Actor)
	return actor
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	wildcard := false
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			wildcard = true
			continue
		}
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if wildcard || len(origins) == 0 {
		// Any origin may call with a bearer header, but cookies are only
		// honored for origins listed explicitly.
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}
