package httpapi

import (
	"net/http"
	"strings"

	"ads360.org/internal/audit"
	"ads360.org/internal/directory"
)

type createEntityRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type updateEntityRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

type createSiteRequest struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Domain   string `json:"domain"`
}

func (a *API) handleEntitiesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requirePermission(w, r, "entities", "view"); !ok {
			return
		}
		entities, err := a.directory.ListEntities(r.Context(), r.URL.Query().Get("type"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": entities})
	case http.MethodPost:
		if _, ok := a.requirePermission(w, r, "entities", "create"); !ok {
			return
		}
		var req createEntityRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		entity, err := a.directory.CreateEntity(r.Context(), directory.CreateEntityParams{
			Type:    req.Type,
			Name:    req.Name,
			Email:   req.Email,
			Phone:   req.Phone,
			Address: req.Address,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.entity.create", map[string]any{
			"entity_id": entity.ID,
			"type":      entity.Type,
		})
		w.Header().Set("Location", "/v1/entities/"+entity.ID)
		writeJSON(w, http.StatusCreated, entity)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEntityResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/entities/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	entityID := parts[0]

	switch {
	case len(parts) == 1:
		a.entityByID(w, r, entityID)
	case len(parts) == 2 && parts[1] == "convert":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if _, ok := a.requirePermission(w, r, "entities", "edit"); !ok {
			return
		}
		entity, err := a.directory.ConvertProspect(r.Context(), entityID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.prospect.convert", map[string]any{
			"entity_id": entity.ID,
		})
		writeJSON(w, http.StatusOK, entity)
	case len(parts) == 2 && parts[1] == "sites":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		principal, ok := a.requirePermission(w, r, "sites", "view")
		if !ok {
			return
		}
		// Partners may only list their own sites.
		if principal.EntityID != "" && principal.EntityID != entityID {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		sites, err := a.directory.ListSites(r.Context(), entityID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": sites})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) entityByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.requirePermission(w, r, "entities", "view"); !ok {
			return
		}
		entity, err := a.directory.GetEntity(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entity)
	case http.MethodPut:
		if _, ok := a.requirePermission(w, r, "entities", "edit"); !ok {
			return
		}
		var req updateEntityRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		entity, err := a.directory.UpdateEntity(r.Context(), id, directory.UpdateEntityParams{
			Name:    req.Name,
			Email:   req.Email,
			Phone:   req.Phone,
			Address: req.Address,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entity)
	case http.MethodDelete:
		if _, ok := a.requirePermission(w, r, "entities", "delete"); !ok {
			return
		}
		if err := a.directory.DeleteEntity(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.entity.delete", map[string]any{
			"entity_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleSitesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requirePermission(w, r, "sites", "create"); !ok {
		return
	}
	var req createSiteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	site, err := a.directory.CreateSite(r.Context(), directory.CreateSiteParams{
		EntityID: req.EntityID,
		Name:     req.Name,
		Domain:   req.Domain,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.site.create", map[string]any{
		"site_id":   site.ID,
		"entity_id": site.EntityID,
	})
	w.Header().Set("Location", "/v1/sites/"+site.ID)
	writeJSON(w, http.StatusCreated, site)
}

func (a *API) handleSiteResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sites/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	siteID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			principal, ok := a.requirePermission(w, r, "sites", "view")
			if !ok {
				return
			}
			site, err := a.directory.GetSite(r.Context(), siteID)
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			// Scoped principals only see their own sites.
			if principal.EntityID != "" && site.EntityID != principal.EntityID {
				writeError(w, r, http.StatusNotFound, "resource not found")
				return
			}
			writeJSON(w, http.StatusOK, site)
		case http.MethodDelete:
			if _, ok := a.requirePermission(w, r, "sites", "delete"); !ok {
				return
			}
			if err := a.directory.DeleteSite(r.Context(), siteID); err != nil {
				handleServiceError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "active":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if _, ok := a.requirePermission(w, r, "sites", "edit"); !ok {
			return
		}
		var req setActiveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.directory.SetSiteActive(r.Context(), siteID, req.Active); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.site.set_active", map[string]any{
			"site_id": siteID,
			"active":  req.Active,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
