package app

import (
	"errors"
	"net/http"
	"strconv"

	"youredu/api/internal/search"
)

func (s *HTTPServer) handleVerifyPilotCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		methodNotAllowed(w)
		return
	}
	var body struct {
		HashedCode string `json:"hashedCode"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.VerifyPilotCode(body.HashedCode); err != nil {
		if errors.Is(err, ErrPilotCodeMismatch) {
			writeError(w, http.StatusUnauthorized, "INVALID_PILOT_CODE", "Invalid pilot code", nil)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleSupport(w http.ResponseWriter, r *http.Request) {
	var body SupportInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	// Signed-in users may leave the address out.
	if body.Email == "" {
		if token := bearerToken(r); token != "" {
			if session, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				body.Email = session.Email
				if body.Name == "" {
					body.Name = session.UserName
				}
			}
		}
	}
	if err := s.service.SubmitSupport(r.Context(), body); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Thanks, we received your message"})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 0 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	resp, err := s.service.Search(r.Context(), search.Query{
		Text:       query.Get("q"),
		UserID:     session.UserID,
		FilterType: search.ResultType(query.Get("type")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) routeAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 1 && parts[0] == "reindex" && r.Method == http.MethodPost:
		count, err := s.service.Reindex(r.Context(), session)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"indexed": count})
	case len(parts) == 1 && parts[0] == "resync-descriptions" && r.Method == http.MethodPost:
		report, err := s.service.ResyncDescriptions(r.Context(), session)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}
