package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"ads360.org/internal/audit"
	"ads360.org/internal/campaign"
	"ads360.org/internal/ids"
	"ads360.org/internal/proofstore"
	"ads360.org/internal/rbac"
)

type createCampaignRequest struct {
	ClientID    string `json:"client_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Budget      int64  `json:"budget"`
}

type campaignCreatedResponse struct {
	Campaign      campaign.Campaign       `json:"campaign"`
	Distributions []campaign.Distribution `json:"distributions"`
}

type reviewProofRequest struct {
	Approve bool `json:"approve"`
}

func (a *API) handleCampaignsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		principal, ok := a.requirePermission(w, r, "campaigns", "view")
		if !ok {
			return
		}
		items, err := a.campaigns.ListCampaigns(r.Context(), rbac.VisibilityFor(principal))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		if _, ok := a.requirePermission(w, r, "campaigns", "create"); !ok {
			return
		}
		var req createCampaignRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		c, rows, err := a.campaigns.CreateCampaign(r.Context(), campaign.CreateCampaignParams{
			ClientID:    req.ClientID,
			Name:        req.Name,
			Description: req.Description,
			Budget:      req.Budget,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "campaign.create", map[string]any{
			"campaign_id": c.ID,
			"client_id":   c.ClientID,
			"budget":      strconv.FormatInt(c.Budget, 10),
		})
		w.Header().Set("Location", "/v1/campaigns/"+c.ID)
		writeJSON(w, http.StatusCreated, campaignCreatedResponse{Campaign: c, Distributions: rows})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCampaignResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/campaigns/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if path == "stats" {
		a.campaignStats(w, r)
		return
	}
	parts := strings.Split(path, "/")
	campaignID := parts[0]

	switch {
	case len(parts) == 1:
		a.campaignByID(w, r, campaignID)
	case len(parts) == 2:
		switch parts[1] {
		case "activate", "pause", "resume", "complete":
			a.campaignTransition(w, r, campaignID, parts[1])
		case "distributions":
			a.listCampaignDistributions(w, r, campaignID)
		case "pay-all":
			a.payAllDistributions(w, r, campaignID)
		case "proofs":
			a.campaignProofs(w, r, campaignID)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) campaignStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := a.requirePermission(w, r, "campaigns", "view")
	if !ok {
		return
	}
	stats, err := a.campaigns.Stats(r.Context(), rbac.VisibilityFor(principal))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) campaignByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		principal, ok := a.requirePermission(w, r, "campaigns", "view")
		if !ok {
			return
		}
		c, err := a.campaigns.GetCampaign(r.Context(), id, rbac.VisibilityFor(principal))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodDelete:
		if _, ok := a.requirePermission(w, r, "campaigns", "delete"); !ok {
			return
		}
		if err := a.campaigns.DeleteCampaign(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "campaign.delete", map[string]any{
			"campaign_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) campaignTransition(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requirePermission(w, r, "campaigns", "edit"); !ok {
		return
	}
	var err error
	switch action {
	case "activate":
		err = a.campaigns.Activate(r.Context(), id)
	case "pause":
		err = a.campaigns.Pause(r.Context(), id)
	case "resume":
		err = a.campaigns.Resume(r.Context(), id)
	case "complete":
		err = a.campaigns.Complete(r.Context(), id)
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "campaign."+action, map[string]any{
		"campaign_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listCampaignDistributions(w http.ResponseWriter, r *http.Request, campaignID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := a.requirePermission(w, r, "campaigns", "view")
	if !ok {
		return
	}
	items, err := a.campaigns.ListDistributions(r.Context(), campaignID, rbac.VisibilityFor(principal))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) payAllDistributions(w http.ResponseWriter, r *http.Request, campaignID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requirePermission(w, r, "campaigns", "pay"); !ok {
		return
	}
	report, err := a.campaigns.MarkAllPaid(r.Context(), campaignID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "campaign.pay_all", map[string]any{
		"campaign_id":  campaignID,
		"paid":         len(report.Paid),
		"already_paid": report.AlreadyPaid,
		"failed":       len(report.Failed),
	})
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleDistributionResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/distributions/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 2 && parts[1] == "pay":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if _, ok := a.requirePermission(w, r, "campaigns", "pay"); !ok {
			return
		}
		result, err := a.campaigns.MarkPaid(r.Context(), parts[0])
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		event := "distribution.pay"
		if result.AlreadyPaid {
			event = "distribution.pay_replay"
		}
		_ = audit.LogEvent(r.Context(), event, map[string]any{
			"distribution_id": result.Distribution.ID,
			"invoice_id":      result.Invoice.ID,
		})
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) campaignProofs(w http.ResponseWriter, r *http.Request, campaignID string) {
	switch r.Method {
	case http.MethodGet:
		principal, ok := a.requirePermission(w, r, "proofs", "view")
		if !ok {
			return
		}
		items, err := a.campaigns.ListProofs(r.Context(), campaignID, rbac.VisibilityFor(principal))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		a.uploadProof(w, r, campaignID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// uploadProof accepts a multipart form with a file part plus site_id and
// an optional note. The file lands in object storage before the proof
// row is written.
func (a *API) uploadProof(w http.ResponseWriter, r *http.Request, campaignID string) {
	principal, ok := a.requirePermission(w, r, "proofs", "create")
	if !ok {
		return
	}
	if principal.EntityID == "" {
		writeError(w, r, http.StatusForbidden, "proof upload requires a partner account")
		return
	}
	if a.proofs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "proof storage is not configured")
		return
	}

	if err := r.ParseMultipartForm(proofstore.MaxProofFileSize); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	if header.Size > proofstore.MaxProofFileSize {
		writeError(w, r, http.StatusBadRequest, "file exceeds the 10 MB limit")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = proofstore.ContentTypeForFilename(header.Filename)
	}
	if !proofstore.ValidFileType(contentType, header.Filename) {
		writeError(w, r, http.StatusBadRequest, "unsupported file type")
		return
	}

	key := proofstore.ObjectKey(campaignID, ids.New(), header.Filename)
	if err := a.proofs.Upload(r.Context(), key, contentType, file, header.Size); err != nil {
		writeError(w, r, http.StatusBadGateway, "file upload failed")
		return
	}

	proof, err := a.campaigns.AddProof(r.Context(), principal.EntityID, campaign.AddProofParams{
		CampaignID: campaignID,
		SiteID:     r.FormValue("site_id"),
		ObjectKey:  key,
		Note:       r.FormValue("note"),
	})
	if err != nil {
		// The row failed, remove the orphaned object.
		_ = a.proofs.Delete(r.Context(), key)
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "proof.upload", map[string]any{
		"proof_id":    proof.ID,
		"campaign_id": campaignID,
		"site_id":     proof.SiteID,
	})
	writeJSON(w, http.StatusCreated, proof)
}

func (a *API) handleProofResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/proofs/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	proofID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "review":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if _, ok := a.requirePermission(w, r, "proofs", "review"); !ok {
			return
		}
		var req reviewProofRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		proof, err := a.campaigns.ReviewProof(r.Context(), proofID, req.Approve)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "proof.review", map[string]any{
			"proof_id": proof.ID,
			"status":   proof.Status,
		})
		writeJSON(w, http.StatusOK, proof)
	case len(parts) == 2 && parts[1] == "file":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		principal, ok := a.requirePermission(w, r, "proofs", "view")
		if !ok {
			return
		}
		if a.proofs == nil {
			writeError(w, r, http.StatusServiceUnavailable, "proof storage is not configured")
			return
		}
		proof, err := a.campaigns.GetProof(r.Context(), proofID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if principal.EntityID != "" && proof.EntityID != principal.EntityID {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		url, err := a.proofs.DownloadURL(r.Context(), proof.ObjectKey)
		if err != nil {
			writeError(w, r, http.StatusBadGateway, "presign failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": url})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
