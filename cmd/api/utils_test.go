package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"moyomzuri/internal/auth"
	"moyomzuri/internal/mpesa"
	"moyomzuri/internal/ratelimiter"
	"moyomzuri/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testAdminPassword = "open-sesame"

type fakeCampaignsStore struct {
	mu        sync.Mutex
	seq       int64
	campaigns map[int64]*store.Campaign
}

func (s *fakeCampaignsStore) Create(_ context.Context, c *store.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c.ID = s.seq
	c.IsActive = true
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	s.campaigns[c.ID] = c
	return nil
}

func (s *fakeCampaignsStore) GetByID(_ context.Context, id int64) (*store.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *fakeCampaignsStore) List(_ context.Context, onlyActive bool, limit, offset int) ([]store.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Campaign
	for _, c := range s.campaigns {
		if onlyActive && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (s *fakeCampaignsStore) Update(_ context.Context, id int64, updates map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	if v, ok := updates["title"]; ok {
		c.Title = v.(string)
	}
	if v, ok := updates["description"]; ok {
		c.Description = v.(string)
	}
	if v, ok := updates["target_amount"]; ok {
		c.TargetAmount = v.(float64)
	}
	if v, ok := updates["is_active"]; ok {
		c.IsActive = v.(bool)
	}
	return nil
}

func (s *fakeCampaignsStore) SetImageURL(_ context.Context, id int64, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	c.ImageURL = &url
	return nil
}

func (s *fakeCampaignsStore) totalRaised(id int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaigns[id].TotalRaised
}

type fakeDonationsStore struct {
	mu        sync.Mutex
	seq       int64
	donations map[int64]*store.Donation
	campaigns *fakeCampaignsStore
}

func (s *fakeDonationsStore) Create(_ context.Context, d *store.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	d.ID = s.seq
	d.Status = store.DonationPending
	d.CreatedAt = time.Now()
	s.donations[d.ID] = d
	return nil
}

func (s *fakeDonationsStore) GetByID(_ context.Context, id int64) (*store.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (s *fakeDonationsStore) GetByCheckoutRequestID(_ context.Context, checkoutRequestID string) (*store.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.donations {
		if d.CheckoutRequestID != nil && *d.CheckoutRequestID == checkoutRequestID {
			copied := *d
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeDonationsStore) AttachCheckoutRequest(_ context.Context, id int64, merchantRequestID, checkoutRequestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return store.ErrNotFound
	}
	d.MerchantRequestID = &merchantRequestID
	d.CheckoutRequestID = &checkoutRequestID
	return nil
}

// Complete mirrors the SQL path: a conditional transition plus a relative
// campaign increment, atomically under the lock.
func (s *fakeDonationsStore) Complete(_ context.Context, id int64, receiptNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return store.ErrNotFound
	}
	if d.Status != store.DonationPending {
		return store.ErrAlreadyFinal
	}
	now := time.Now()
	d.Status = store.DonationCompleted
	d.MpesaReceiptNumber = &receiptNumber
	d.CompletedAt = &now

	s.campaigns.mu.Lock()
	s.campaigns.campaigns[d.CampaignID].TotalRaised += d.Amount
	s.campaigns.mu.Unlock()
	return nil
}

func (s *fakeDonationsStore) MarkFailed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.donations[id]
	if !ok {
		return store.ErrNotFound
	}
	if d.Status != store.DonationPending {
		return store.ErrAlreadyFinal
	}
	d.Status = store.DonationFailed
	return nil
}

func (s *fakeDonationsStore) List(_ context.Context, status string, limit, offset int) ([]store.Donation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Donation
	for _, d := range s.donations {
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, *d)
	}
	return out, len(out), nil
}

type fakeGateway struct {
	pushFn  func(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
	queryFn func(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResponse, error)
}

func (g *fakeGateway) STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	return g.pushFn(ctx, req)
}

func (g *fakeGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResponse, error) {
	return g.queryFn(ctx, checkoutRequestID)
}

type fakeMailer struct{}

func (fakeMailer) Send(templateFile, username, email string, data any) (int, error) {
	return 200, nil
}

type testApp struct {
	*application
	campaigns *fakeCampaignsStore
	donations *fakeDonationsStore
	gateway   *fakeGateway
}

func newTestApplication(t *testing.T) *testApp {
	t.Helper()

	campaigns := &fakeCampaignsStore{campaigns: map[int64]*store.Campaign{}}
	donations := &fakeDonationsStore{donations: map[int64]*store.Donation{}, campaigns: campaigns}
	gateway := &fakeGateway{
		pushFn: func(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
			return &mpesa.STKPushResponse{
				MerchantRequestID: "merchant-1",
				CheckoutRequestID: "ws_CO_test",
				ResponseCode:      "0",
			}, nil
		},
		queryFn: func(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResponse, error) {
			return &mpesa.QueryResponse{ResponseCode: "0", CheckoutRequestID: checkoutRequestID}, nil
		},
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	refs, err := newDonationRefs("test-salt")
	require.NoError(t, err)

	app := &application{
		config: config{
			env:   "test",
			admin: adminConfig{passwordHash: string(hash)},
			auth: authConfig{
				token: tokenConfig{secret: "test-secret", exp: time.Hour, iss: "moyomzuri"},
			},
			rateLimiter: ratelimiter.Config{Enabled: false},
		},
		store: store.Storage{
			Campaigns: campaigns,
			Donations: donations,
		},
		logger:        zap.NewNop().Sugar(),
		mpesa:         gateway,
		mailer:        fakeMailer{},
		authenticator: auth.NewJWTAuthenticator("test-secret", "moyomzuri", "moyomzuri"),
		refs:          refs,
	}

	return &testApp{application: app, campaigns: campaigns, donations: donations, gateway: gateway}
}

func (ta *testApp) seedCampaign(t *testing.T, title string, target float64, active bool) *store.Campaign {
	t.Helper()
	c := &store.Campaign{Title: title, Description: "test campaign", TargetAmount: target}
	require.NoError(t, ta.campaigns.Create(context.Background(), c))
	ta.campaigns.campaigns[c.ID].IsActive = active
	return c
}

func (ta *testApp) seedPendingDonation(t *testing.T, campaignID int64, amount float64, checkoutRequestID string) *store.Donation {
	t.Helper()
	d := &store.Donation{CampaignID: campaignID, Amount: amount, PhoneNumber: "254712345678"}
	require.NoError(t, ta.donations.Create(context.Background(), d))
	if checkoutRequestID != "" {
		require.NoError(t, ta.donations.AttachCheckoutRequest(context.Background(), d.ID, "merchant-1", checkoutRequestID))
	}
	return d
}

func (ta *testApp) adminToken(t *testing.T) string {
	t.Helper()
	rr := executeRequest(t, ta.mount(), http.MethodPost, "/v1/admin/login",
		`{"password":"`+testAdminPassword+`"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Data adminTokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Data.Token
}

func executeRequest(t *testing.T, mux http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}
