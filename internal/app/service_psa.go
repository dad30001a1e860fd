package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"youredu/api/internal/catalog"
	"youredu/api/internal/email"
	"youredu/api/internal/export"
	"youredu/api/internal/gitrepo"
	"youredu/api/internal/psa"
	"youredu/api/internal/session"
	"youredu/api/internal/store"
	"youredu/api/internal/util"
)

// PSASubmittedRedirect is where the client goes after a successful submit.
const PSASubmittedRedirect = "/state-compliance?submitted=psa"

const psaHistoryAuthor = "YourEDU Autosave"

type PSAView struct {
	Form       psa.Form         `json:"formData"`
	Completion int              `json:"completionPercentage"`
	Missing    []psa.StepErrors `json:"missingFields"`
	Pending    bool             `json:"pending"`
	UpdatedAt  *time.Time       `json:"updatedAt,omitempty"`
}

type SignatureInput struct {
	Name string `json:"signatureName" validate:"required,notblank,max=200"`
	Date string `json:"signatureDate" validate:"required,datetime=2006-01-02"`
}

type VerificationView struct {
	StagingID string               `json:"stagingId"`
	FormData  psa.Form             `json:"formData"`
	Sections  []psa.Section        `json:"sections"`
	Email     session.EmailPreview `json:"email"`
	PDFURL    string               `json:"pdfUrl"`
	ExpiresAt time.Time            `json:"expiresAt"`
}

type SubmissionResult struct {
	SubmissionID string `json:"submissionId"`
	PDFPath      string `json:"pdfPath"`
	FileURL      string `json:"fileUrl"`
	EmailSent    bool   `json:"emailSent"`
	EmailWarning string `json:"emailWarning,omitempty"`
	RedirectTo   string `json:"redirectTo"`
}

// loadPSAForm returns the persisted draft form, empty when the user has none.
func (s *Service) loadPSAForm(ctx context.Context, userID string) (psa.Form, *time.Time, error) {
	draft, err := s.store.GetPSADraft(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return psa.Form{}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	form, err := psa.DecodeForm(draft.FormData)
	if err != nil {
		return nil, nil, fmt.Errorf("decode psa draft: %w", err)
	}
	updatedAt := draft.UpdatedAt
	return form, &updatedAt, nil
}

// currentPSAForm is the persisted draft overlaid with edits still waiting
// in the debouncer.
func (s *Service) currentPSAForm(ctx context.Context, userID string) (psa.Form, bool, *time.Time, error) {
	if pending, ok := s.psaDrafts.Pending(userID); ok {
		return pending, true, nil, nil
	}
	form, updatedAt, err := s.loadPSAForm(ctx, userID)
	return form, false, updatedAt, err
}

func psaView(form psa.Form, pending bool, updatedAt *time.Time) PSAView {
	return PSAView{
		Form:       form,
		Completion: psa.CompletionPercentage(form),
		Missing:    psa.MissingFields(form),
		Pending:    pending,
		UpdatedAt:  updatedAt,
	}
}

func (s *Service) GetPSA(ctx context.Context, userID string) (PSAView, error) {
	form, pending, updatedAt, err := s.currentPSAForm(ctx, userID)
	if err != nil {
		return PSAView{}, err
	}
	return psaView(form, pending, updatedAt), nil
}

// PatchPSA applies field edits to the in-memory draft and schedules the
// write. Only the last value of a burst reaches the database.
func (s *Service) PatchPSA(ctx context.Context, userID string, patch psa.Form) (PSAView, error) {
	if len(patch) == 0 {
		return PSAView{}, validationError("No fields to update", nil)
	}
	if unknown := unknownPSAFields(patch); len(unknown) > 0 {
		return PSAView{}, validationError("Unknown affidavit fields", map[string]any{"fields": unknown})
	}

	var base psa.Form
	if _, ok := s.psaDrafts.Pending(userID); !ok {
		loaded, _, err := s.loadPSAForm(ctx, userID)
		if err != nil {
			return PSAView{}, err
		}
		base = loaded
	}
	form := s.psaDrafts.Update(userID, func(current psa.Form, ok bool) psa.Form {
		if ok {
			return current.Merge(patch)
		}
		if base == nil {
			base = psa.Form{}
		}
		return base.Merge(patch)
	})
	return psaView(form, true, nil), nil
}

func unknownPSAFields(patch psa.Form) []string {
	known := map[string]bool{}
	for _, field := range psa.KnownFields() {
		known[field] = true
	}
	unknown := make([]string, 0)
	for field := range patch {
		if !known[field] {
			unknown = append(unknown, field)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// FlushPSA writes the pending draft now. It reports whether anything was pending.
func (s *Service) FlushPSA(userID string) bool {
	return s.psaDrafts.Flush(userID)
}

func (s *Service) flushPSADraft(userID string, form psa.Form) {
	ctx, cancel := background()
	defer cancel()

	err := s.savePSADraft(ctx, userID, form)
	s.observeFlush("psa", err)
	if err != nil {
		log.Printf("psa: flush draft for %s: %v", userID, err)
		return
	}
	s.recordPSARevision(userID, form, "Autosave affidavit draft")
}

func (s *Service) savePSADraft(ctx context.Context, userID string, form psa.Form) error {
	raw, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("marshal psa draft: %w", err)
	}
	draft := store.PSADraft{
		ID:         util.NewID(),
		UserID:     userID,
		SchoolName: form.String("school_name"),
		County:     form.String("county"),
		District:   form.String("district"),
		FormData:   raw,
	}
	if value, ok := form.Choice("name_changed"); ok {
		draft.NameChanged = &value
	}
	if value, ok := form.Choice("district_changed"); ok {
		draft.DistrictChanged = &value
	}
	return s.store.UpsertPSADraft(ctx, draft)
}

func (s *Service) recordPSARevision(userID string, form psa.Form, message string) {
	if s.history == nil {
		return
	}
	if _, _, err := s.history.Record(userID, form, psaHistoryAuthor, message); err != nil {
		log.Printf("psa: record history for %s: %v", userID, err)
	}
}

func (s *Service) PSAHistory(userID string, limit int) ([]gitrepo.Revision, error) {
	if s.history == nil {
		return []gitrepo.Revision{}, nil
	}
	return s.history.History(userID, limit)
}

// CreateVerification renders the affidavit PDF and the confirmation mail
// preview and stages both until the parent signs.
func (s *Service) CreateVerification(ctx context.Context, sess Session) (VerificationView, error) {
	form, _, _, err := s.currentPSAForm(ctx, sess.UserID)
	if err != nil {
		return VerificationView{}, err
	}
	if missing := psa.MissingFields(form); len(missing) > 0 {
		return VerificationView{}, domainError(http.StatusUnprocessableEntity, "PSA_INCOMPLETE", "Please complete all required fields before submitting", missing)
	}

	cleaned := psa.Clean(form)
	result, err := s.exporter.PSAPDF(ctx, cleaned)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return VerificationView{}, domainError(http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF generation is not available", nil)
		}
		return VerificationView{}, fmt.Errorf("generate psa pdf: %w", err)
	}

	subject, html, err := s.notifier.RenderPSAEmail(email.PSAEmail{
		UserID:     sess.UserID,
		Email:      sess.Email,
		FileName:   result.Filename,
		State:      "California",
		SchoolName: cleaned.String("school_name"),
	})
	if err != nil {
		return VerificationView{}, err
	}

	formData, err := json.Marshal(cleaned)
	if err != nil {
		return VerificationView{}, fmt.Errorf("marshal verification form: %w", err)
	}
	staged := session.Verification{
		ID:       util.NewID(),
		UserID:   sess.UserID,
		FormData: formData,
		PDF:      result.Data,
		Email: session.EmailPreview{
			To:             sess.Email,
			Subject:        subject,
			HTML:           html,
			AttachmentName: result.Filename,
		},
		CreatedAt: s.now(),
	}
	ttl := s.cfg.PSAStagingTTL
	if ttl <= 0 {
		ttl = session.StagingTTL
	}
	if err := s.staging.StageVerification(ctx, staged, ttl); err != nil {
		return VerificationView{}, err
	}

	return VerificationView{
		StagingID: staged.ID,
		FormData:  cleaned,
		Sections:  psa.Sections(cleaned),
		Email:     staged.Email,
		PDFURL:    "/api/psa/verification/" + staged.ID + "/pdf",
		ExpiresAt: staged.CreatedAt.Add(ttl),
	}, nil
}

func (s *Service) loadVerification(ctx context.Context, userID, stagingID string) (session.Verification, error) {
	staged, err := s.staging.LoadVerification(ctx, stagingID)
	if errors.Is(err, session.ErrNotFound) {
		return session.Verification{}, domainError(http.StatusNotFound, "VERIFICATION_EXPIRED", "Verification not found or expired", nil)
	}
	if err != nil {
		return session.Verification{}, err
	}
	if staged.UserID != userID {
		return session.Verification{}, domainError(http.StatusNotFound, "VERIFICATION_EXPIRED", "Verification not found or expired", nil)
	}
	return staged, nil
}

func (s *Service) VerificationPDF(ctx context.Context, userID, stagingID string) ([]byte, string, error) {
	staged, err := s.loadVerification(ctx, userID, stagingID)
	if err != nil {
		return nil, "", err
	}
	return staged.PDF, staged.Email.AttachmentName, nil
}

// ConfirmVerification submits a staged affidavit. Steps run in order and the
// first failure stops the submit; earlier steps are not undone. Only the
// confirmation email is best-effort.
func (s *Service) ConfirmVerification(ctx context.Context, sess Session, stagingID string, signature SignatureInput) (SubmissionResult, error) {
	if err := validateInput(signature); err != nil {
		return SubmissionResult{}, err
	}
	signedOn, err := time.ParseInLocation("2006-01-02", signature.Date, s.location)
	if err != nil {
		return SubmissionResult{}, validationError("Signature date must be YYYY-MM-DD", nil)
	}

	staged, err := s.loadVerification(ctx, sess.UserID, stagingID)
	if err != nil {
		return SubmissionResult{}, err
	}
	form, err := psa.DecodeForm(staged.FormData)
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("decode staged form: %w", err)
	}
	cleaned := psa.Clean(form)
	if missing := psa.MissingFields(cleaned); len(missing) > 0 {
		return SubmissionResult{}, domainError(http.StatusUnprocessableEntity, "PSA_INCOMPLETE", "Please complete all required fields before submitting", missing)
	}

	submitFailed := func(err error) (SubmissionResult, error) {
		return SubmissionResult{}, domainError(http.StatusInternalServerError, "SUBMISSION_FAILED", err.Error(), nil)
	}

	// Pending edits would otherwise land on top of the submitted draft.
	s.psaDrafts.Cancel(sess.UserID)
	if err := s.savePSADraft(ctx, sess.UserID, cleaned); err != nil {
		return submitFailed(err)
	}

	now := s.now()
	fileName := staged.Email.AttachmentName
	if fileName == "" {
		fileName = psa.AttachmentName(cleaned)
	}
	pdfPath := catalog.PSAPath(sess.UserID, fileName, now)
	submission := store.PSASubmission{
		ID:            util.NewID(),
		UserID:        sess.UserID,
		SchoolYear:    cleaned.String("school_year"),
		FormData:      staged.FormData,
		SignatureName: strings.TrimSpace(signature.Name),
		SignatureDate: signedOn,
		PDFPath:       pdfPath,
	}
	if err := s.store.InsertPSASubmission(ctx, submission); err != nil {
		return submitFailed(err)
	}

	bucket := s.cfg.Buckets.Compliance
	if _, err := s.blobs.Put(ctx, bucket, pdfPath, bytes.NewReader(staged.PDF), int64(len(staged.PDF)), blobPDF()); err != nil {
		return submitFailed(err)
	}
	fileURL := s.blobs.PublicURL(bucket, pdfPath)

	result := SubmissionResult{
		SubmissionID: submission.ID,
		PDFPath:      pdfPath,
		FileURL:      fileURL,
		RedirectTo:   PSASubmittedRedirect,
	}
	to := staged.Email.To
	if to == "" {
		to = sess.Email
	}
	err = s.notifier.SendPSAEmail(ctx, email.PSAEmail{
		UserID:     sess.UserID,
		Email:      to,
		FileURL:    fileURL,
		FileName:   fileName,
		State:      "California",
		SchoolName: cleaned.String("school_name"),
	})
	if err != nil {
		log.Printf("psa: send confirmation email for %s: %v", sess.UserID, err)
		result.EmailWarning = "Your affidavit was submitted, but the confirmation email could not be sent: " + err.Error()
	} else {
		result.EmailSent = true
	}

	if err := s.staging.DeleteVerification(ctx, stagingID); err != nil {
		log.Printf("psa: delete staged verification %s: %v", stagingID, err)
	}
	s.recordPSARevision(sess.UserID, cleaned, "Submit affidavit")
	if s.history != nil {
		if err := s.history.Tag(sess.UserID, "submitted-"+now.UTC().Format("20060102-150405")); err != nil {
			log.Printf("psa: tag submission for %s: %v", sess.UserID, err)
		}
	}
	return result, nil
}

func (s *Service) ListPSASubmissions(ctx context.Context, userID string) ([]map[string]any, error) {
	submissions, err := s.store.ListPSASubmissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(submissions))
	for _, submission := range submissions {
		items = append(items, map[string]any{
			"id":            submission.ID,
			"schoolYear":    submission.SchoolYear,
			"formData":      submission.FormData,
			"signatureName": submission.SignatureName,
			"signatureDate": submission.SignatureDate.Format("2006-01-02"),
			"pdfPath":       submission.PDFPath,
			"submittedAt":   submission.SubmittedAt,
		})
	}
	return items, nil
}
