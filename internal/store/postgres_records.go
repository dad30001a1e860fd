package store

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultFolders are created for a user the first time their folders are listed.
var DefaultFolders = []Folder{
	{Name: "Attendance", Category: "attendance"},
	{Name: "Work Samples", Category: "work_samples"},
	{Name: "Report Cards", Category: "report_cards"},
	{Name: "Compliance", Category: "compliance"},
	{Name: "Transcripts", Category: "transcripts"},
	{Name: "Health Records", Category: "health"},
}

func (s *PostgresStore) ListFolders(ctx context.Context, userID string) ([]Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, category, is_default, created_at, updated_at
		FROM folders
		WHERE user_id=$1
		ORDER BY is_default DESC, name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	folders := make([]Folder, 0)
	for rows.Next() {
		var folder Folder
		if err := rows.Scan(&folder.ID, &folder.UserID, &folder.Name, &folder.Category, &folder.IsDefault, &folder.CreatedAt, &folder.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

func (s *PostgresStore) GetFolder(ctx context.Context, userID, folderID string) (Folder, error) {
	var folder Folder
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, category, is_default, created_at, updated_at
		FROM folders
		WHERE id=$1 AND user_id=$2
	`, folderID, userID).Scan(&folder.ID, &folder.UserID, &folder.Name, &folder.Category, &folder.IsDefault, &folder.CreatedAt, &folder.UpdatedAt)
	if err != nil {
		return Folder{}, err
	}
	return folder, nil
}

func (s *PostgresStore) InsertFolder(ctx context.Context, folder Folder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (id, user_id, name, category, is_default)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, folder.ID, folder.UserID, folder.Name, folder.Category, folder.IsDefault)
	if err != nil {
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

func (s *PostgresStore) RenameFolder(ctx context.Context, userID, folderID, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE folders SET name=$3, updated_at=NOW()
		WHERE id=$1 AND user_id=$2 AND is_default=FALSE
	`, folderID, userID, name)
	if err != nil {
		return fmt.Errorf("rename folder: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteFolder removes a non-default folder row and reports how many rows
// were affected. Default folders are never matched.
func (s *PostgresStore) DeleteFolder(ctx context.Context, userID, folderID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM folders WHERE id=$1 AND user_id=$2 AND is_default=FALSE
	`, folderID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete folder: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete folder rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, userID, folderID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, folder_id, user_id, name, size_bytes, mime_type, storage_path, created_at
		FROM documents
		WHERE user_id=$1 AND folder_id=$2
		ORDER BY created_at DESC
	`, userID, folderID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *PostgresStore) ListAllDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, folder_id, user_id, name, size_bytes, mime_type, storage_path, created_at
		FROM documents
	`)
	if err != nil {
		return nil, fmt.Errorf("list all documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]Document, error) {
	documents := make([]Document, 0)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.FolderID, &doc.UserID, &doc.Name, &doc.SizeBytes, &doc.MimeType, &doc.StoragePath, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, doc)
	}
	return documents, rows.Err()
}

func (s *PostgresStore) GetDocument(ctx context.Context, userID, documentID string) (Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, folder_id, user_id, name, size_bytes, mime_type, storage_path, created_at
		FROM documents
		WHERE id=$1 AND user_id=$2
	`, documentID, userID).Scan(&doc.ID, &doc.FolderID, &doc.UserID, &doc.Name, &doc.SizeBytes, &doc.MimeType, &doc.StoragePath, &doc.CreatedAt)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, folder_id, user_id, name, size_bytes, mime_type, storage_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, doc.ID, doc.FolderID, doc.UserID, doc.Name, doc.SizeBytes, doc.MimeType, doc.StoragePath)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, userID, documentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1 AND user_id=$2`, documentID, userID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteFolderDocuments bulk-deletes every document row of a folder.
func (s *PostgresStore) DeleteFolderDocuments(ctx context.Context, userID, folderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE folder_id=$1 AND user_id=$2`, folderID, userID)
	if err != nil {
		return fmt.Errorf("delete folder documents: %w", err)
	}
	return nil
}
