package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ads360.org/internal/auth"
	"ads360.org/internal/campaign"
	"ads360.org/internal/config"
	"ads360.org/internal/directory"
	"ads360.org/internal/finance"
	"ads360.org/internal/rbac"
)

const testPassword = "s3cret-pass"

// --- in-memory backends, only the methods the exercised flows touch ---

type apiUserStore struct {
	rbac.Store
	users      map[string]rbac.User      // by email
	principals map[string]rbac.Principal // by user id
}

func (s *apiUserStore) FindUserByEmail(ctx context.Context, email string) (rbac.User, error) {
	u, ok := s.users[email]
	if !ok {
		return rbac.User{}, rbac.ErrNotFound
	}
	return u, nil
}

func (s *apiUserStore) Principal(ctx context.Context, userID string) (rbac.Principal, error) {
	p, ok := s.principals[userID]
	if !ok {
		return rbac.Principal{}, rbac.ErrNotFound
	}
	return p, nil
}

type memTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*auth.RefreshToken
}

func (s *memTokenStore) CreateRefreshToken(ctx context.Context, t *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tokens[t.ID] = &cp
	return nil
}

func (s *memTokenStore) FindRefreshToken(ctx context.Context, id string) (auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return auth.RefreshToken{}, auth.ErrInvalidToken
	}
	return *t, nil
}

func (s *memTokenStore) RevokeRefreshToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[id]; ok {
		t.Revoked = true
	}
	return nil
}

func (s *memTokenStore) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

type apiDirStore struct {
	directory.Store
	entities   map[string]directory.Entity
	sites      map[string]directory.Site
	siteCounts map[string]int
}

func (s *apiDirStore) GetEntity(ctx context.Context, id string) (directory.Entity, error) {
	e, ok := s.entities[id]
	if !ok {
		return directory.Entity{}, directory.ErrNotFound
	}
	return e, nil
}

func (s *apiDirStore) AdminEntity(ctx context.Context) (directory.Entity, error) {
	for _, e := range s.entities {
		if e.Type == directory.EntityAdmin {
			return e, nil
		}
	}
	return directory.Entity{}, directory.ErrNoAdminEntity
}

func (s *apiDirStore) GetSite(ctx context.Context, id string) (directory.Site, error) {
	site, ok := s.sites[id]
	if !ok {
		return directory.Site{}, directory.ErrNotFound
	}
	return site, nil
}

func (s *apiDirStore) PartnerSiteCounts(ctx context.Context) (map[string]int, error) {
	return s.siteCounts, nil
}

type apiCampaignStore struct {
	campaign.Store
	mu        sync.Mutex
	campaigns map[string]campaign.Campaign
	dists     map[string]campaign.Distribution
	invoices  map[string]finance.Invoice // by distribution id
}

func (s *apiCampaignStore) CreateCampaign(ctx context.Context, c *campaign.Campaign, rows []campaign.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = *c
	for _, d := range rows {
		s.dists[d.ID] = d
	}
	return nil
}

func (s *apiCampaignStore) GetCampaign(ctx context.Context, id string, vis rbac.Visibility) (campaign.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || !s.visible(c, vis) {
		return campaign.Campaign{}, campaign.ErrNotFound
	}
	return c, nil
}

func (s *apiCampaignStore) ListCampaigns(ctx context.Context, vis rbac.Visibility) ([]campaign.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []campaign.Campaign
	for _, c := range s.campaigns {
		if s.visible(c, vis) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *apiCampaignStore) visible(c campaign.Campaign, vis rbac.Visibility) bool {
	if vis.ClientEntityID != "" && c.ClientID != vis.ClientEntityID {
		return false
	}
	if vis.PartnerEntityID != "" {
		for _, d := range s.dists {
			if d.CampaignID == c.ID && d.EntityID == vis.PartnerEntityID {
				return true
			}
		}
		return false
	}
	return true
}

func (s *apiCampaignStore) MarkDistributionPaid(ctx context.Context, id string, paidAt time.Time) (campaign.PaymentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dists[id]
	if !ok {
		return campaign.PaymentResult{}, campaign.ErrNotFound
	}
	if d.Status == campaign.DistributionPaid {
		return campaign.PaymentResult{
			Distribution: d,
			Invoice:      s.invoices[id],
			AlreadyPaid:  true,
		}, nil
	}
	d.Status = campaign.DistributionPaid
	d.PaidAt = &paidAt
	s.dists[id] = d
	inv := finance.Invoice{
		ID:             "inv-" + id,
		Number:         finance.InvoiceNumber(paidAt, id),
		EntityID:       d.EntityID,
		DistributionID: id,
		TotalAmount:    d.Amount,
		PaidAmount:     d.Amount,
		Status:         finance.InvoicePaid,
	}
	s.invoices[id] = inv
	return campaign.PaymentResult{Distribution: d, Invoice: inv}, nil
}

type apiFinanceStore struct {
	finance.Store
}

// --- harness ---

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	adminHash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	users := &apiUserStore{
		users: map[string]rbac.User{
			"admin@ads360.org": {ID: "u-admin", Email: "admin@ads360.org", PasswordHash: adminHash, Active: true},
			"p1@partner.test":  {ID: "u-p1", Email: "p1@partner.test", PasswordHash: adminHash, Active: true},
		},
		principals: map[string]rbac.Principal{
			"u-admin": {
				UserID:      "u-admin",
				Email:       "admin@ads360.org",
				RoleName:    rbac.RoleSuperAdmin,
				Active:      true,
				Permissions: rbac.EmptyPermissionSet(),
			},
			"u-p1": {
				UserID:   "u-p1",
				Email:    "p1@partner.test",
				RoleName: rbac.RolePartner,
				EntityID: "ent-p1",
				Active:   true,
				Permissions: rbac.ParsePermissions([]byte(
					`{"campaigns": ["view"], "sites": ["view"], "proofs": ["view", "create"]}`)),
			},
		},
	}

	rbacSvc, err := rbac.NewService(users, nil)
	if err != nil {
		t.Fatalf("rbac service: %v", err)
	}
	authSvc, err := auth.NewService(rbacSvc, &memTokenStore{tokens: make(map[string]*auth.RefreshToken)}, "httpapi-test-secret")
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}

	dirStore := &apiDirStore{
		entities: map[string]directory.Entity{
			"ent-admin":  {ID: "ent-admin", Type: directory.EntityAdmin, Name: "HQ"},
			"ent-client": {ID: "ent-client", Type: directory.EntityClient, Name: "Acme"},
			"ent-p1":     {ID: "ent-p1", Type: directory.EntityPartner, Name: "Partner One"},
			"ent-p2":     {ID: "ent-p2", Type: directory.EntityPartner, Name: "Partner Two"},
		},
		sites: map[string]directory.Site{
			"site-p1": {ID: "site-p1", EntityID: "ent-p1", Name: "Partner One Site", Active: true},
			"site-p2": {ID: "site-p2", EntityID: "ent-p2", Name: "Partner Two Site", Active: true},
		},
		siteCounts: map[string]int{"ent-p1": 3, "ent-p2": 1},
	}
	dirSvc, err := directory.NewService(dirStore)
	if err != nil {
		t.Fatalf("directory service: %v", err)
	}

	campSvc, err := campaign.NewService(&apiCampaignStore{
		campaigns: make(map[string]campaign.Campaign),
		dists:     make(map[string]campaign.Distribution),
		invoices:  make(map[string]finance.Invoice),
	}, dirSvc, nil)
	if err != nil {
		t.Fatalf("campaign service: %v", err)
	}

	finSvc, err := finance.NewService(&apiFinanceStore{}, nil)
	if err != nil {
		t.Fatalf("finance service: %v", err)
	}

	api := New(Deps{
		Auth:      authSvc,
		RBAC:      rbacSvc,
		Directory: dirSvc,
		Campaigns: campSvc,
		Finance:   finSvc,
		Server: config.ServerConfig{
			CORSAllowedOrigins: "*",
			MaxBodyBytes:       1 << 20,
			RateLimitRPS:       1000,
			RateLimitBurst:     1000,
		},
		Version: "test",
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t}
}

func (c *apiClient) do(method, path, token string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *apiClient) login(email string) string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	var body struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.t.Fatalf("decode login response: %v", err)
	}
	return body.Tokens.AccessToken
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// --- tests ---

func TestUnauthenticatedRequestRejected(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/v1/campaigns", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginAndMe(t *testing.T) {
	c := newTestAPI(t)
	token := c.login("admin@ads360.org")

	resp := c.do(http.MethodGet, "/v1/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	principal := decodeBody[rbac.Principal](t, resp)
	if principal.UserID != "u-admin" || principal.RoleName != rbac.RoleSuperAdmin {
		t.Fatalf("unexpected principal: %+v", principal)
	}
}

func TestLoginBadPassword(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    "admin@ads360.org",
		"password": "wrong",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCampaignCreateAndPayFlow(t *testing.T) {
	c := newTestAPI(t)
	admin := c.login("admin@ads360.org")

	resp := c.do(http.MethodPost, "/v1/campaigns", admin, map[string]any{
		"client_id": "ent-client",
		"name":      "Spring promo",
		"budget":    100000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeBody[campaignCreatedResponse](t, resp)
	if created.Campaign.AdminShare != 70000 || created.Campaign.PartnersShare != 30000 {
		t.Fatalf("unexpected shares: %+v", created.Campaign)
	}
	// admin row plus two partner rows
	if len(created.Distributions) != 3 {
		t.Fatalf("expected 3 distributions, got %d", len(created.Distributions))
	}

	var partnerDist campaign.Distribution
	for _, d := range created.Distributions {
		if d.EntityID == "ent-p1" {
			partnerDist = d
		}
	}
	if partnerDist.ID == "" {
		t.Fatal("no distribution for ent-p1")
	}

	payPath := fmt.Sprintf("/v1/distributions/%s/pay", partnerDist.ID)
	resp = c.do(http.MethodPost, payPath, admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pay status = %d", resp.StatusCode)
	}
	first := decodeBody[campaign.PaymentResult](t, resp)
	if first.AlreadyPaid {
		t.Fatal("first payout must not be a replay")
	}
	if first.Invoice.TotalAmount != partnerDist.Amount {
		t.Fatalf("invoice amount = %d, want %d", first.Invoice.TotalAmount, partnerDist.Amount)
	}

	resp = c.do(http.MethodPost, payPath, admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay status = %d", resp.StatusCode)
	}
	second := decodeBody[campaign.PaymentResult](t, resp)
	if !second.AlreadyPaid {
		t.Fatal("second payout must report already_paid")
	}
	if second.Invoice.Number != first.Invoice.Number {
		t.Fatalf("replay returned a different invoice: %s vs %s", second.Invoice.Number, first.Invoice.Number)
	}
}

func TestPartnerCannotCreateCampaign(t *testing.T) {
	c := newTestAPI(t)
	partner := c.login("p1@partner.test")

	resp := c.do(http.MethodPost, "/v1/campaigns", partner, map[string]any{
		"client_id": "ent-client",
		"name":      "Nope",
		"budget":    1000,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestPartnerSeesOnlyOwnCampaigns(t *testing.T) {
	c := newTestAPI(t)
	admin := c.login("admin@ads360.org")
	partner := c.login("p1@partner.test")

	resp := c.do(http.MethodPost, "/v1/campaigns", admin, map[string]any{
		"client_id": "ent-client",
		"name":      "Visible",
		"budget":    1000,
	})
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/campaigns", partner, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	body := decodeBody[struct {
		Items []campaign.Campaign `json:"items"`
	}](t, resp)
	if len(body.Items) != 1 {
		t.Fatalf("partner sees %d campaigns, want 1", len(body.Items))
	}
}

func TestPartnerCannotReadForeignSite(t *testing.T) {
	c := newTestAPI(t)
	partner := c.login("p1@partner.test")

	resp := c.do(http.MethodGet, "/v1/sites/site-p2", partner, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign site status = %d, want 404", resp.StatusCode)
	}

	resp = c.do(http.MethodGet, "/v1/sites/site-p1", partner, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("own site status = %d, want 200", resp.StatusCode)
	}
	site := decodeBody[directory.Site](t, resp)
	if site.EntityID != "ent-p1" {
		t.Fatalf("unexpected site owner: %s", site.EntityID)
	}

	// Unscoped principals are unaffected.
	admin := c.login("admin@ads360.org")
	resp = c.do(http.MethodGet, "/v1/sites/site-p2", admin, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	c := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := c.do(http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
