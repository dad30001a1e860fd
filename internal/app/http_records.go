package app

import (
	"errors"
	"net/http"
)

// readUpload pulls the "file" part out of a multipart request.
func readUpload(w http.ResponseWriter, r *http.Request) (Upload, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return Upload{}, nil, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the 50 MB limit", nil)
		}
		return Upload{}, nil, domainError(http.StatusBadRequest, "INVALID_BODY", "Expected a multipart form with a file field", nil)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return Upload{}, nil, validationError("A file is required", nil)
	}
	if header.Size > MaxUploadBytes {
		_ = file.Close()
		return Upload{}, nil, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the 50 MB limit", nil)
	}
	upload := Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	return upload, func() {
		_ = file.Close()
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}, nil
}

func (s *HTTPServer) routeFolders(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	ctx := r.Context()
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		folders, err := s.service.ListFolders(ctx, session.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"folders": foldersPayload(folders)})

	case len(parts) == 0 && r.Method == http.MethodPost:
		var body FolderInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		folder, err := s.service.CreateFolder(ctx, session.UserID, body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, folderPayload(folder))

	case len(parts) == 1 && (r.Method == http.MethodPatch || r.Method == http.MethodPut):
		var body FolderInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		folder, err := s.service.RenameFolder(ctx, session.UserID, parts[0], body)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, folderPayload(folder))

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteFolder(ctx, session.UserID, parts[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 2 && parts[1] == "documents" && r.Method == http.MethodGet:
		docs, err := s.service.ListDocuments(ctx, session.UserID, parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": documentsPayload(docs)})

	case len(parts) == 2 && parts[1] == "documents" && r.Method == http.MethodPost:
		upload, cleanup, err := readUpload(w, r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		defer cleanup()
		doc, err := s.service.UploadDocument(ctx, session.UserID, parts[0], upload)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, documentPayload(doc))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) routeDocuments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 2 && parts[1] == "url" && r.Method == http.MethodGet:
		link, err := s.service.DocumentURL(r.Context(), session.UserID, parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, link)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.service.DeleteDocument(r.Context(), session.UserID, parts[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}
