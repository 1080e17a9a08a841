package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/greenledger/ghgstage/internal/utils"
	"github.com/greenledger/ghgstage/pkg/ghg"
	"github.com/greenledger/ghgstage/pkg/lookup"
)

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type optionJSON struct {
	ID            string `json:"id,omitempty"`
	Name          string `json:"name"`
	NotApplicable bool   `json:"not_applicable,omitempty"`
}

type stagedJSON struct {
	ID             string `json:"id"`
	SubcategoryID  string `json:"subcategory_id"`
	Frequency      string `json:"frequency"`
	Scope          int    `json:"scope"`
	Database       string `json:"database"`
	MainCategoryID string `json:"main_category_id"`
	MainCategory   string `json:"main_category"`
	SubCategory    string `json:"sub_category"`
	Activity       string `json:"activity"`
	Selection1     string `json:"selection1"`
	Selection2     string `json:"selection2"`
	EmissionFactor string `json:"emission_factor"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data}); err != nil {
		utils.Log.WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := apiResponse{Error: &apiError{Code: code, Message: message}}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		utils.Log.WithError(err).Error("failed to encode error response")
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	if lookup.IsNotAvailable(err) {
		respondError(w, http.StatusNotFound, lookup.CodeNotAvailable, err.Error())
		return
	}
	respondError(w, http.StatusBadGateway, "upstream_error", err.Error())
}

func (s *Server) writeOptions(w http.ResponseWriter, opts []ghg.Option, err error) {
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]optionJSON, 0, len(opts))
	for _, o := range opts {
		switch {
		case o.NotApplicable && s.LegacySentinel:
			out = append(out, optionJSON{Name: ghg.NotApplicableLabel})
		case o.NotApplicable:
			out = append(out, optionJSON{Name: ghg.NotApplicableLabel, NotApplicable: true})
		default:
			out = append(out, optionJSON{ID: o.ID, Name: o.Label})
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleMainCategories(w http.ResponseWriter, r *http.Request) {
	scope, err := ghg.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	db, err := ghg.ParseDatabase(r.URL.Query().Get("database"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	opts, err := s.Service.ListMainCategories(r.Context(), scope, db)
	s.writeOptions(w, opts, err)
}

func (s *Server) handleSubCategories(w http.ResponseWriter, r *http.Request) {
	opts, err := s.Service.ListSubCategories(r.Context(), chi.URLParam(r, "main"))
	s.writeOptions(w, opts, err)
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := s.Service.ListActivities(r.Context(), chi.URLParam(r, "main"), q.Get("sub"))
	s.writeOptions(w, opts, err)
}

func (s *Server) handleSelection1(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := s.Service.ListSelection1(r.Context(), chi.URLParam(r, "main"), q.Get("sub"), q.Get("activity"))
	s.writeOptions(w, opts, err)
}

func (s *Server) handleSelection2(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts, err := s.Service.ListSelection2(r.Context(), chi.URLParam(r, "main"),
		q.Get("sub"), q.Get("activity"), q.Get("selection1"))
	s.writeOptions(w, opts, err)
}

// readBody returns the request body as parsed JSON.
func readBody(r *http.Request) (gjson.Result, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(b) {
		return gjson.Result{}, errors.New("invalid JSON body")
	}
	return gjson.ParseBytes(b), nil
}

func (s *Server) handleFactor(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	q := lookup.FactorQuery{
		Database:       ghg.Database(body.Get("database").String()),
		Scope:          ghg.Scope(body.Get("scope").Int()),
		MainCategoryID: body.Get("main_category_id").String(),
		SubCategory:    body.Get("sub_category").String(),
		Activity:       body.Get("activity").String(),
		Selection1:     body.Get("selection1").String(),
		Selection2:     body.Get("selection2").String(),
	}
	f, err := s.Service.GetFactor(r.Context(), q)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"factor":         f.Value.String(),
		"subcategory_id": f.SubcategoryID,
	})
}

func (s *Server) handleListStaged(w http.ResponseWriter, r *http.Request) {
	scope, err := ghg.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	list, err := s.Service.ListStagedActivities(r.Context(), chi.URLParam(r, "project"), scope)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]stagedJSON, 0, len(list))
	for _, a := range list {
		out = append(out, stagedJSON{
			ID:             a.ID,
			SubcategoryID:  a.SubcategoryID,
			Frequency:      a.Frequency,
			Scope:          int(a.Scope),
			Database:       string(a.Database),
			MainCategoryID: a.MainCategoryID,
			MainCategory:   a.MainCategory,
			SubCategory:    a.SubCategory,
			Activity:       a.Activity,
			Selection1:     a.Selection1,
			Selection2:     a.Selection2,
			EmissionFactor: a.EmissionFactor.String(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleAppendStaged(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	sub := body.Get("subcategory_id").String()
	if sub == "" {
		respondError(w, http.StatusBadRequest, "bad_request", "subcategory_id is required")
		return
	}
	id, err := s.Service.AppendStagedActivity(r.Context(), chi.URLParam(r, "project"), sub, body.Get("frequency").String())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleUpdateStaged(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	err = s.Service.UpdateStagedActivity(r.Context(), chi.URLParam(r, "project"),
		body.Get("old_subcategory_id").String(),
		body.Get("new_subcategory_id").String(),
		body.Get("frequency").String())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) handleDeleteStaged(w http.ResponseWriter, r *http.Request) {
	err := s.Service.DeleteStagedActivity(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "subcategory"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.CommitStagedChanges(r.Context(), chi.URLParam(r, "project")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"committed": chi.URLParam(r, "project")})
}
