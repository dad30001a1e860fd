package app

import (
	"net/http"
	"strconv"

	"youredu/api/internal/psa"
	"youredu/api/internal/rbac"
)

func (s *HTTPServer) routePSA(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		view, err := s.service.GetPSA(r.Context(), session.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	case len(parts) == 0 && (r.Method == http.MethodPatch || r.Method == http.MethodPut):
		s.handlePSAPatch(w, r, session)

	case len(parts) == 1 && parts[0] == "flush" && r.Method == http.MethodPost:
		flushed := s.service.FlushPSA(session.UserID)
		view, err := s.service.GetPSA(r.Context(), session.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"flushed": flushed, "psa": view})

	case len(parts) == 1 && parts[0] == "history" && r.Method == http.MethodGet:
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		revisions, err := s.service.PSAHistory(session.UserID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"revisions": revisions})

	case len(parts) == 1 && parts[0] == "submissions" && r.Method == http.MethodGet:
		items, err := s.service.ListPSASubmissions(r.Context(), session.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"submissions": items})

	case len(parts) == 1 && parts[0] == "verification" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionSubmit) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		view, err := s.service.CreateVerification(r.Context(), session)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)

	case len(parts) == 3 && parts[0] == "verification" && parts[2] == "pdf" && r.Method == http.MethodGet:
		s.handleVerificationPDF(w, r, session, parts[1])

	case len(parts) == 3 && parts[0] == "verification" && parts[2] == "confirm" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionSubmit) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var body SignatureInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.ConfirmVerification(r.Context(), session, parts[1], body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handlePSAPatch(w http.ResponseWriter, r *http.Request, session Session) {
	body := psa.Form{}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	// Both {"formData": {...}} and a bare field map are accepted.
	if nested, ok := body["formData"].(map[string]any); ok && len(body) == 1 {
		body = psa.Form(nested)
	}

	view, err := s.service.PatchPSA(r.Context(), session.UserID, body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

func (s *HTTPServer) handleVerificationPDF(w http.ResponseWriter, r *http.Request, session Session, stagingID string) {
	pdf, filename, err := s.service.VerificationPDF(r.Context(), session.UserID, stagingID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
