package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/url-indexer/internal/metrics"
)

const accountField = "accountFile"

func (s *Server) uploadAccount(w http.ResponseWriter, r *http.Request) {
	data, err := s.readUpload(w, r, accountField)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cred, err := s.accounts.Register(r.Context(), r.FormValue("name"), data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	metrics.ObserveUpload("account", len(data))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "account uploaded",
		"account": cred,
	})
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	creds, err := s.accounts.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": creds})
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "account deleted"})
}
