package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/barter"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/community"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/config"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/database"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/listings"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const testBearerPrefix = "Bearer "

var errUnknownTestToken = errors.New("unknown test token")

// stubSessions treats the bearer token as the user id.
type stubSessions struct {
	err error
}

func (s stubSessions) ValidateRequest(r *http.Request) (auth.SessionClaims, error) {
	if s.err != nil {
		return auth.SessionClaims{}, s.err
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, testBearerPrefix) {
		return auth.SessionClaims{}, auth.ErrMissingSessionToken
	}
	userID := strings.TrimPrefix(header, testBearerPrefix)
	if userID == "" {
		return auth.SessionClaims{}, errUnknownTestToken
	}
	return auth.SessionClaims{UserID: userID, UserDisplayName: strings.ToUpper(userID[:1]) + userID[1:]}, nil
}

type stubActors struct {
	err error
}

func (s stubActors) ResolveActor(_ context.Context, claims auth.SessionClaims) (users.Actor, error) {
	if s.err != nil {
		return users.Actor{}, s.err
	}
	return users.Actor{ID: claims.UserID, Name: claims.UserDisplayName}, nil
}

type testStack struct {
	handler    http.Handler
	dispatcher *realtime.Dispatcher
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "server.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	dispatcher := realtime.NewDispatcher()
	notificationService, err := notifications.NewService(notifications.ServiceConfig{Database: db, Publisher: dispatcher})
	if err != nil {
		t.Fatalf("failed to build notifications service: %v", err)
	}
	communityService, err := community.NewService(community.ServiceConfig{
		Repository: community.NewGormRepository(db),
		Notifier:   notificationService,
	})
	if err != nil {
		t.Fatalf("failed to build community service: %v", err)
	}
	listingService, err := listings.NewService(listings.ServiceConfig{
		Repository: listings.NewGormRepository(db),
		Members:    communityService,
	})
	if err != nil {
		t.Fatalf("failed to build listings service: %v", err)
	}
	barterService, err := barter.NewService(barter.ServiceConfig{
		Repository: barter.NewGormRepository(db),
		Listings:   listingService,
		Members:    communityService,
		Notifier:   notificationService,
	})
	if err != nil {
		t.Fatalf("failed to build barter service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:         stubSessions{},
		Actors:           stubActors{},
		BarterService:    barterService,
		CommunityService: communityService,
		ListingsService:  listingService,
		Notifications:    notificationService,
		Realtime:         dispatcher,
		AllowedOrigins:   []string{"https://swapcircle.example"},
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &testStack{handler: handler, dispatcher: dispatcher}
}

func (s *testStack) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if userID != "" {
		request.Header.Set("Authorization", testBearerPrefix+userID)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s *testStack) mustDo(t *testing.T, method, path, userID string, body any, wantStatus int, out any) {
	t.Helper()
	recorder := s.do(t, method, path, userID, body)
	if recorder.Code != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, wantStatus, recorder.Code, recorder.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
		}
	}
}

// seedCommunity creates a community owned by admin, joins each member and
// posts one listing for owner.
func (s *testStack) seedCommunity(t *testing.T, admin, owner string, members ...string) (string, string) {
	t.Helper()
	var created community.Community
	s.mustDo(t, http.MethodPost, "/communities", admin, gin.H{"name": "Riverside Swap", "location": "Riverside"}, http.StatusCreated, &created)
	for _, member := range append([]string{owner}, members...) {
		if member == admin {
			continue
		}
		s.mustDo(t, http.MethodPost, "/communities/join", member, gin.H{"code": strings.ToLower(created.Code)}, http.StatusOK, nil)
	}
	var listing listings.Listing
	s.mustDo(t, http.MethodPost, "/communities/"+created.ID+"/listings", owner, gin.H{
		"title":           "Guitar lessons",
		"description":     "Beginner lessons, one hour",
		"category":        "service",
		"estimated_value": 40,
	}, http.StatusCreated, &listing)
	return created.ID, listing.ID
}
