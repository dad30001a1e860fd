package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

func (s *PostgresStore) GetPSADraft(ctx context.Context, userID string) (PSADraft, error) {
	var draft PSADraft
	var nameChanged, districtChanged sql.NullBool
	var formData []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, school_name, county, district, name_changed, district_changed, form_data, updated_at
		FROM california_psa
		WHERE user_id=$1
	`, userID).Scan(
		&draft.ID,
		&draft.UserID,
		&draft.SchoolName,
		&draft.County,
		&draft.District,
		&nameChanged,
		&districtChanged,
		&formData,
		&draft.UpdatedAt,
	)
	if err != nil {
		return PSADraft{}, err
	}
	draft.NameChanged = nullBoolPtr(nameChanged)
	draft.DistrictChanged = nullBoolPtr(districtChanged)
	draft.FormData = json.RawMessage(formData)
	return draft, nil
}

// UpsertPSADraft writes the whole draft keyed on user_id. Concurrent writers
// overwrite each other; the last statement to commit wins.
func (s *PostgresStore) UpsertPSADraft(ctx context.Context, draft PSADraft) error {
	formData := draft.FormData
	if len(formData) == 0 {
		formData = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO california_psa (id, user_id, school_name, county, district, name_changed, district_changed, form_data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			school_name=EXCLUDED.school_name,
			county=EXCLUDED.county,
			district=EXCLUDED.district,
			name_changed=EXCLUDED.name_changed,
			district_changed=EXCLUDED.district_changed,
			form_data=EXCLUDED.form_data,
			updated_at=NOW()
	`, draft.ID, draft.UserID, draft.SchoolName, draft.County, draft.District, boolPtrArg(draft.NameChanged), boolPtrArg(draft.DistrictChanged), []byte(formData))
	if err != nil {
		return fmt.Errorf("upsert psa draft: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertPSASubmission(ctx context.Context, submission PSASubmission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO psa_submissions (id, user_id, school_year, form_data, signature_name, signature_date, pdf_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, submission.ID, submission.UserID, submission.SchoolYear, []byte(submission.FormData), submission.SignatureName, submission.SignatureDate, submission.PDFPath)
	if err != nil {
		return fmt.Errorf("insert psa submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPSASubmissions(ctx context.Context, userID string) ([]PSASubmission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, school_year, form_data, signature_name, signature_date, pdf_path, submitted_at
		FROM psa_submissions
		WHERE user_id=$1
		ORDER BY submitted_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list psa submissions: %w", err)
	}
	defer rows.Close()

	submissions := make([]PSASubmission, 0)
	for rows.Next() {
		var item PSASubmission
		var formData []byte
		if err := rows.Scan(&item.ID, &item.UserID, &item.SchoolYear, &formData, &item.SignatureName, &item.SignatureDate, &item.PDFPath, &item.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan psa submission: %w", err)
		}
		item.FormData = json.RawMessage(formData)
		submissions = append(submissions, item)
	}
	return submissions, rows.Err()
}

func nullBoolPtr(value sql.NullBool) *bool {
	if !value.Valid {
		return nil
	}
	v := value.Bool
	return &v
}

func boolPtrArg(value *bool) any {
	if value == nil {
		return nil
	}
	return *value
}
