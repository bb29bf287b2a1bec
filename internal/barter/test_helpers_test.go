package barter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/listings"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/users"
	"go.uber.org/zap"
)

var (
	testOwner     = users.Actor{ID: "owner-ana", Name: "Ana"}
	testRequester = users.Actor{ID: "requester-ben", Name: "Ben"}
	testStranger  = users.Actor{ID: "stranger-cy", Name: "Cy"}
)

const testListingID = "listing-guitar"

type memoryRepository struct {
	mu         sync.Mutex
	requests   map[string]Request
	retired    map[string]time.Time
	conflicts  int
	interfere  func(stored *Request)
	retireErr  error
	updateSeen int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		requests: make(map[string]Request),
		retired:  make(map[string]time.Time),
	}
}

// memoryTx buffers writes until the transaction function returns nil.
// Interference hooks write straight to the committed store, like a competing
// writer that already committed.
type memoryTx struct {
	repo     *memoryRepository
	requests map[string]Request
	retired  map[string]time.Time
}

func (r *memoryRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	tx := &memoryTx{
		repo:     r,
		requests: make(map[string]Request),
		retired:  make(map[string]time.Time),
	}
	if err := fn(tx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, req := range tx.requests {
		r.requests[id] = req
	}
	for id, at := range tx.retired {
		r.retired[id] = at
	}
	return nil
}

func (r *memoryRepository) CreateRequest(_ context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = *req
	return nil
}

func (r *memoryRepository) GetRequest(_ context.Context, id string) (*Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &req, nil
}

func (r *memoryRepository) UpdateRequest(ctx context.Context, req *Request, expectedVersion int64) error {
	return r.Transaction(ctx, func(tx Repository) error {
		return tx.UpdateRequest(ctx, req, expectedVersion)
	})
}

func (r *memoryRepository) ListByRequester(_ context.Context, userID string) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Request
	for _, req := range r.requests {
		if req.RequesterID == userID {
			result = append(result, req)
		}
	}
	return result, nil
}

func (r *memoryRepository) ListByOwner(_ context.Context, userID string) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Request
	for _, req := range r.requests {
		if req.OwnerID == userID {
			result = append(result, req)
		}
	}
	return result, nil
}

func (r *memoryRepository) RetireListing(ctx context.Context, listingID string, at time.Time) error {
	return r.Transaction(ctx, func(tx Repository) error {
		return tx.RetireListing(ctx, listingID, at)
	})
}

func (tx *memoryTx) Transaction(_ context.Context, fn func(tx Repository) error) error {
	return fn(tx)
}

func (tx *memoryTx) CreateRequest(_ context.Context, req *Request) error {
	tx.requests[req.ID] = *req
	return nil
}

func (tx *memoryTx) GetRequest(ctx context.Context, id string) (*Request, error) {
	if req, ok := tx.requests[id]; ok {
		return &req, nil
	}
	return tx.repo.GetRequest(ctx, id)
}

func (tx *memoryTx) UpdateRequest(_ context.Context, req *Request, expectedVersion int64) error {
	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateSeen++

	stored, ok := tx.requests[req.ID]
	if !ok {
		stored, ok = r.requests[req.ID]
	}
	if !ok {
		return ErrRequestNotFound
	}
	if r.interfere != nil {
		interfere := r.interfere
		r.interfere = nil
		interfere(&stored)
		stored.Version++
		r.requests[req.ID] = stored
	}
	if r.conflicts > 0 {
		r.conflicts--
		stored.Version++
		r.requests[req.ID] = stored
	}
	if stored.Version != expectedVersion {
		return ErrStaleRequest
	}
	tx.requests[req.ID] = *req
	return nil
}

func (tx *memoryTx) ListByRequester(ctx context.Context, userID string) ([]Request, error) {
	return tx.repo.ListByRequester(ctx, userID)
}

func (tx *memoryTx) ListByOwner(ctx context.Context, userID string) ([]Request, error) {
	return tx.repo.ListByOwner(ctx, userID)
}

func (tx *memoryTx) RetireListing(_ context.Context, listingID string, at time.Time) error {
	tx.repo.mu.Lock()
	retireErr := tx.repo.retireErr
	_, alreadyRetired := tx.repo.retired[listingID]
	tx.repo.mu.Unlock()
	if retireErr != nil {
		return retireErr
	}
	if _, pending := tx.retired[listingID]; alreadyRetired || pending {
		return ErrListingInactive
	}
	tx.retired[listingID] = at
	return nil
}

func (r *memoryRepository) stored(t *testing.T, id string) Request {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		t.Fatalf("request %s not stored", id)
	}
	return req
}

func (r *memoryRepository) isRetired(listingID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.retired[listingID]
	return ok
}

type stubListings struct {
	listings map[string]listings.Listing
}

func (s *stubListings) ResolveListing(_ context.Context, id string) (*listings.Listing, error) {
	listing, ok := s.listings[id]
	if !ok {
		return nil, listings.ErrListingNotFound
	}
	return &listing, nil
}

type stubMembers struct {
	members map[string]bool
}

func (s *stubMembers) IsMember(_ context.Context, communityID, userID string) (bool, error) {
	return s.members[communityID+"/"+userID], nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notifications.Notice
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, notice notifications.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) messagesFor(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var messages []string
	for _, notice := range n.notices {
		if notice.Message == "" {
			continue
		}
		for _, recipient := range notice.Recipients {
			if recipient == userID {
				messages = append(messages, notice.Message)
			}
		}
	}
	return messages
}

type sequenceCodes struct {
	codes []string
	next  int
}

func (s *sequenceCodes) NewCode() (string, error) {
	if s.next >= len(s.codes) {
		return "", errors.New("sequence exhausted")
	}
	code := s.codes[s.next]
	s.next++
	return code, nil
}

type sequenceIDs struct {
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.next++
	return "request-" + string(rune('0'+s.next)), nil
}

type testHarness struct {
	service  *Service
	repo     *memoryRepository
	notifier *recordingNotifier
	listings *stubListings
}

type harnessOption func(*ServiceConfig)

func newTestHarness(t *testing.T, options ...harnessOption) *testHarness {
	t.Helper()
	repo := newMemoryRepository()
	notifier := &recordingNotifier{}
	stub := &stubListings{listings: map[string]listings.Listing{
		testListingID: {
			ID:             testListingID,
			CommunityID:    "community-1",
			OwnerID:        testOwner.ID,
			OwnerName:      testOwner.Name,
			Title:          "Guitar lessons",
			Description:    "Four beginner lessons",
			Category:       listings.CategoryService,
			EstimatedValue: 120,
			Active:         true,
		},
		"listing-retired": {
			ID:      "listing-retired",
			OwnerID: testOwner.ID,
			Title:   "Old bike",
			Active:  false,
		},
	}}
	clockNow := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	cfg := ServiceConfig{
		Repository: repo,
		Listings:   stub,
		Notifier:   notifier,
		Codes:      &sequenceCodes{codes: []string{"OWN123", "REQ456", "XTRA11", "XTRA22"}},
		IDProvider: &sequenceIDs{},
		Clock:      func() time.Time { return clockNow },
		Logger:     zap.NewNop(),
	}
	for _, option := range options {
		option(&cfg)
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return &testHarness{service: service, repo: repo, notifier: notifier, listings: stub}
}

func (h *testHarness) mustCreate(t *testing.T) *Request {
	t.Helper()
	req, err := h.service.CreateRequest(context.Background(), testRequester, CreateRequestInput{
		ListingID:        testListingID,
		OfferDescription: "Homemade bread for a month",
		OfferValue:       100,
		OfferType:        "product",
	})
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	return req
}

// mustReachBothAccepted drives a fresh request to both_accepted.
func (h *testHarness) mustReachBothAccepted(t *testing.T) *Request {
	t.Helper()
	ctx := context.Background()
	req := h.mustCreate(t)
	if _, err := h.service.RespondToRequest(ctx, testOwner, req.ID, true); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	accepted, err := h.service.RequesterAcknowledge(ctx, testRequester, req.ID)
	if err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if accepted.Status != StatusBothAccepted {
		t.Fatalf("expected both_accepted, got %s", accepted.Status)
	}
	return accepted
}
