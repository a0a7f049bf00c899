package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"ads360.org/internal/auth"
	"ads360.org/internal/campaign"
	"ads360.org/internal/config"
	"ads360.org/internal/directory"
	"ads360.org/internal/finance"
	"ads360.org/internal/obs"
	"ads360.org/internal/proofstore"
	"ads360.org/internal/rbac"
)

// ReadyProbe reports readiness, pinging the database when configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Auth      *auth.Service
	RBAC      *rbac.Service
	Directory *directory.Service
	Campaigns *campaign.Service
	Finance   *finance.Service
	Proofs    *proofstore.S3 // nil disables proof file endpoints
	Ready     ReadyProbe
	Server    config.ServerConfig
	Version   string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	rbac       *rbac.Service
	directory  *directory.Service
	campaigns  *campaign.Service
	finance    *finance.Service
	proofs     *proofstore.S3
	readyProbe ReadyProbe
	server     config.ServerConfig
	version    string
}

func New(deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       deps.Auth,
		rbac:       deps.RBAC,
		directory:  deps.Directory,
		campaigns:  deps.Campaigns,
		finance:    deps.Finance,
		proofs:     deps.Proofs,
		readyProbe: deps.Ready,
		server:     deps.Server,
		version:    deps.Version,
	}

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.ready)
	a.mux.HandleFunc("/v1/info", a.info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	a.mux.HandleFunc("/v1/roles", a.handleRolesCollection)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	a.mux.HandleFunc("/v1/entities", a.handleEntitiesCollection)
	a.mux.HandleFunc("/v1/entities/", a.handleEntityResource)
	a.mux.HandleFunc("/v1/sites", a.handleSitesCollection)
	a.mux.HandleFunc("/v1/sites/", a.handleSiteResource)

	a.mux.HandleFunc("/v1/campaigns", a.handleCampaignsCollection)
	a.mux.HandleFunc("/v1/campaigns/", a.handleCampaignResource)
	a.mux.HandleFunc("/v1/distributions/", a.handleDistributionResource)
	a.mux.HandleFunc("/v1/proofs/", a.handleProofResource)

	a.mux.HandleFunc("/v1/invoices", a.handleInvoicesCollection)
	a.mux.HandleFunc("/v1/invoices/", a.handleInvoiceResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.server.MaxBodyBytes)
	if a.server.RateLimitRPS > 0 {
		h = RateLimit(h, a.server.RateLimitRPS, a.server.RateLimitBurst)
	}
	h = CORS(h, a.server.CORSAllowedOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "ads360-api",
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "ads360-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
