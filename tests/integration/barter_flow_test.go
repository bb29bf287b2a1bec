package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/barter"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/community"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/config"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/database"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/listings"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/server"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "swapcircle_session"
	sessionIssuer        = "swapcircle-auth"
	jsonContentType      = "application/json"
)

type client struct {
	testContext *testing.T
	baseURL     string
	cookie      *http.Cookie
}

func (c client) call(method, path string, body any, wantStatus int, out any) {
	c.testContext.Helper()
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			c.testContext.Fatalf("failed to encode body: %v", err)
		}
		payload = encoded
	}
	request, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.testContext.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	request.AddCookie(c.cookie)

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		c.testContext.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	if response.StatusCode != wantStatus {
		var failure map[string]any
		_ = json.NewDecoder(response.Body).Decode(&failure)
		c.testContext.Fatalf("%s %s: expected status %d, got %d (%v)", method, path, wantStatus, response.StatusCode, failure)
	}
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			c.testContext.Fatalf("%s %s: failed to decode response: %v", method, path, err)
		}
	}
}

type barterPayload struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	Role               string `json:"role"`
	ConfirmationCode   string `json:"confirmation_code"`
	OwnerConfirmed     bool   `json:"owner_confirmed"`
	RequesterConfirmed bool   `json:"requester_confirmed"`
	OwnerName          string `json:"owner_name"`
	RequesterName      string `json:"requester_name"`
}

func TestBarterMarketplaceFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := database.Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(testContext.TempDir(), "integration.db"),
	}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql db: %v", err)
	}
	defer sqlDB.Close()

	dispatcher := realtime.NewDispatcher()
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session validator: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build users service: %v", err)
	}
	notificationService, err := notifications.NewService(notifications.ServiceConfig{Database: db, Publisher: dispatcher})
	if err != nil {
		testContext.Fatalf("failed to build notifications service: %v", err)
	}
	communityService, err := community.NewService(community.ServiceConfig{
		Repository: community.NewGormRepository(db),
		Notifier:   notificationService,
	})
	if err != nil {
		testContext.Fatalf("failed to build community service: %v", err)
	}
	listingService, err := listings.NewService(listings.ServiceConfig{
		Repository: listings.NewGormRepository(db),
		Members:    communityService,
	})
	if err != nil {
		testContext.Fatalf("failed to build listings service: %v", err)
	}
	barterService, err := barter.NewService(barter.ServiceConfig{
		Repository: barter.NewGormRepository(db),
		Listings:   listingService,
		Members:    communityService,
		Notifier:   notificationService,
	})
	if err != nil {
		testContext.Fatalf("failed to build barter service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:         sessionValidator,
		Actors:           userService,
		BarterService:    barterService,
		CommunityService: communityService,
		ListingsService:  listingService,
		Notifications:    notificationService,
		Realtime:         dispatcher,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	now := time.Now()
	ana := client{testContext: testContext, baseURL: testServer.URL, cookie: sessionCookie(testContext, "user-ana", "Ana", now)}
	ben := client{testContext: testContext, baseURL: testServer.URL, cookie: sessionCookie(testContext, "user-ben", "Ben", now)}

	var created community.Community
	ana.call(http.MethodPost, "/communities", map[string]any{"name": "Riverside Swap", "location": "Riverside"}, http.StatusCreated, &created)
	ben.call(http.MethodPost, "/communities/join", map[string]any{"code": created.Code}, http.StatusOK, nil)

	var listing listings.Listing
	ana.call(http.MethodPost, "/communities/"+created.ID+"/listings", map[string]any{
		"title":           "Guitar lessons",
		"description":     "One hour, beginner friendly",
		"category":        "service",
		"estimated_value": 40,
	}, http.StatusCreated, &listing)

	var offer barterPayload
	ben.call(http.MethodPost, "/barters", map[string]any{
		"listing_id":        listing.ID,
		"offer_description": "Homemade bread for a month",
		"offer_value":       35,
		"offer_type":        "product",
	}, http.StatusCreated, &offer)
	if offer.OwnerName != "Ana" || offer.RequesterName != "Ben" {
		testContext.Fatalf("expected display names from session claims, got %+v", offer)
	}

	var accepted barterPayload
	ana.call(http.MethodPost, "/barters/"+offer.ID+"/respond", map[string]any{"accept": true}, http.StatusOK, &accepted)
	var benView barterPayload
	ben.call(http.MethodPost, "/barters/"+offer.ID+"/acknowledge", nil, http.StatusOK, &benView)
	if benView.Status != "both_accepted" || benView.ConfirmationCode == "" || benView.ConfirmationCode == accepted.ConfirmationCode {
		testContext.Fatalf("unexpected requester view %+v", benView)
	}

	ben.call(http.MethodPost, "/barters/"+offer.ID+"/complete", map[string]any{"code": accepted.ConfirmationCode}, http.StatusOK, nil)
	var done barterPayload
	ana.call(http.MethodPost, "/barters/"+offer.ID+"/complete", map[string]any{"code": benView.ConfirmationCode}, http.StatusOK, &done)
	if done.Status != "completed" || !done.OwnerConfirmed || !done.RequesterConfirmed {
		testContext.Fatalf("expected completed barter, got %+v", done)
	}
	ana.call(http.MethodPost, "/barters/"+offer.ID+"/complete", map[string]any{"code": benView.ConfirmationCode}, http.StatusOK, nil)

	var inbox struct {
		Notifications []notifications.Notification `json:"notifications"`
		Unread        int64                        `json:"unread"`
	}
	ben.call(http.MethodGet, "/notifications", nil, http.StatusOK, &inbox)
	messages := make(map[string]bool, len(inbox.Notifications))
	for _, entry := range inbox.Notifications {
		messages[entry.Message] = true
	}
	for _, want := range []string{
		`Your barter request for "Guitar lessons" was accepted!`,
		`Both parties accepted the barter for "Guitar lessons". Chat is now unlocked!`,
		`Barter for "Guitar lessons" is completed!`,
	} {
		if !messages[want] {
			testContext.Fatalf("missing notification %q in %v", want, messages)
		}
	}
}

func sessionCookie(testContext *testing.T, userID, name string, now time.Time) *http.Cookie {
	testContext.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.SessionClaims{
		UserID:          userID,
		UserDisplayName: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(sessionSigningSecret))
	if err != nil {
		testContext.Fatalf("failed to sign session token: %v", err)
	}
	return &http.Cookie{Name: sessionCookieName, Value: signed}
}
