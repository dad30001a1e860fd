package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"

	"youredu/api/internal/coursedesc"
	"youredu/api/internal/email"
	"youredu/api/internal/rbac"
	"youredu/api/internal/search"
)

var ErrPilotCodeMismatch = errors.New("invalid pilot code")

type SupportInput struct {
	Name     string `json:"name" validate:"max=200"`
	Email    string `json:"email" validate:"required,email"`
	Category string `json:"category" validate:"max=60"`
	Message  string `json:"message" validate:"required,notblank,max=5000"`
}

type ResyncReport struct {
	Students int      `json:"students"`
	Synced   int      `json:"synced"`
	Skipped  []string `json:"skipped"`
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if q.UserID == "" {
		return search.Response{}, search.ErrMissingUser
	}
	return s.search.Search(q)
}

// SubmitSupport mails a confirmation to the requester with the support inbox
// copied.
func (s *Service) SubmitSupport(ctx context.Context, input SupportInput) error {
	if err := validateInput(input); err != nil {
		return err
	}
	if input.Category = strings.TrimSpace(input.Category); input.Category == "" {
		input.Category = "General"
	}
	if !s.notifier.Configured() {
		return domainError(http.StatusServiceUnavailable, "EMAIL_UNAVAILABLE", "Email delivery is not configured", nil)
	}
	return s.notifier.SendSupportConfirmation(ctx, email.SupportRequest{
		Name:     strings.TrimSpace(input.Name),
		Email:    strings.TrimSpace(input.Email),
		Category: input.Category,
		Message:  input.Message,
	})
}

// VerifyPilotCode compares a client-hashed pilot code with the configured hash.
func (s *Service) VerifyPilotCode(hashedCode string) error {
	expected := strings.TrimSpace(s.cfg.PilotCodeHash)
	if expected == "" {
		return domainError(http.StatusInternalServerError, "PILOT_NOT_CONFIGURED", "Pilot code verification is not configured", nil)
	}
	hashedCode = strings.TrimSpace(hashedCode)
	if hashedCode == "" {
		return domainError(http.StatusBadRequest, "BAD_REQUEST", "hashedCode is required", nil)
	}
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(hashedCode)), []byte(strings.ToLower(expected))) != 1 {
		return ErrPilotCodeMismatch
	}
	return nil
}

func (s *Service) requireAdmin(sess Session) error {
	if !s.Can(sess.Role, rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Admin role required", nil)
	}
	return nil
}

// Reindex rebuilds every search index from Postgres.
func (s *Service) Reindex(ctx context.Context, sess Session) (int, error) {
	if err := s.requireAdmin(sess); err != nil {
		return 0, err
	}
	return s.ReindexAll(ctx)
}

func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	count, err := s.search.ReindexAllFromPG(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("search: reindexed %d documents", count)
	return count, nil
}

func (s *Service) ResyncDescriptions(ctx context.Context, sess Session) (ResyncReport, error) {
	if err := s.requireAdmin(sess); err != nil {
		return ResyncReport{}, err
	}
	return s.ResyncAllDescriptions(ctx)
}

// ResyncAllDescriptions runs the description sync for every student of every
// account. Students whose grade level has no bucket are skipped.
func (s *Service) ResyncAllDescriptions(ctx context.Context) (ResyncReport, error) {
	students, err := s.store.ListAllStudents(ctx)
	if err != nil {
		return ResyncReport{}, err
	}
	report := ResyncReport{Students: len(students), Skipped: []string{}}
	for _, student := range students {
		if _, err := s.descriptions.Sync(ctx, student.UserID, student.ID); err != nil {
			if errors.Is(err, coursedesc.ErrUnknownGradeLevel) {
				report.Skipped = append(report.Skipped, student.ID)
				continue
			}
			return report, err
		}
		report.Synced++
	}
	return report, nil
}
