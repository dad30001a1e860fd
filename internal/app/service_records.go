package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"youredu/api/internal/blob"
	"youredu/api/internal/catalog"
	"youredu/api/internal/search"
	"youredu/api/internal/store"
	"youredu/api/internal/util"
)

// MaxUploadBytes bounds a single uploaded file.
const MaxUploadBytes = 50 << 20

type FolderInput struct {
	Name     string `json:"name" validate:"required,notblank,max=120"`
	Category string `json:"category" validate:"max=60"`
}

// Upload is one file received from a multipart form.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func blobPDF() blob.PutOptions {
	return blob.PutOptions{ContentType: "application/pdf"}
}

func uploadOptions(upload Upload, metadata map[string]string) blob.PutOptions {
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return blob.PutOptions{ContentType: contentType, Metadata: metadata}
}

func (s *Service) signedURL(ctx context.Context, bucket, key string) (SignedURL, error) {
	url, err := s.blobs.SignedURL(ctx, bucket, key, blob.SignedURLExpiry)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return SignedURL{}, notFound("File")
		}
		return SignedURL{}, err
	}
	return SignedURL{URL: url, ExpiresAt: s.now().Add(blob.SignedURLExpiry)}, nil
}

// removeBlob deletes an object, treating a missing one as already gone.
func (s *Service) removeBlob(ctx context.Context, bucket, key string) error {
	if err := s.blobs.Delete(ctx, bucket, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return err
	}
	return nil
}

// ListFolders returns the user's folders, creating the default set the first
// time a user has none.
func (s *Service) ListFolders(ctx context.Context, userID string) ([]store.Folder, error) {
	folders, err := s.store.ListFolders(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(folders) > 0 {
		return folders, nil
	}
	for _, seed := range store.DefaultFolders {
		if err := s.store.InsertFolder(ctx, store.Folder{
			ID:        util.NewID(),
			UserID:    userID,
			Name:      seed.Name,
			Category:  seed.Category,
			IsDefault: true,
		}); err != nil {
			return nil, err
		}
	}
	return s.store.ListFolders(ctx, userID)
}

func (s *Service) CreateFolder(ctx context.Context, userID string, input FolderInput) (store.Folder, error) {
	if err := validateInput(input); err != nil {
		return store.Folder{}, err
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		category = "custom"
	}
	folder := store.Folder{
		ID:       util.NewID(),
		UserID:   userID,
		Name:     strings.TrimSpace(input.Name),
		Category: category,
	}
	if err := s.store.InsertFolder(ctx, folder); err != nil {
		return store.Folder{}, err
	}
	return s.store.GetFolder(ctx, userID, folder.ID)
}

func (s *Service) RenameFolder(ctx context.Context, userID, folderID string, input FolderInput) (store.Folder, error) {
	if err := validateInput(input); err != nil {
		return store.Folder{}, err
	}
	folder, err := s.store.GetFolder(ctx, userID, folderID)
	if err != nil {
		return store.Folder{}, err
	}
	if folder.IsDefault {
		return store.Folder{}, defaultFolderError()
	}
	if err := s.store.RenameFolder(ctx, userID, folderID, strings.TrimSpace(input.Name)); err != nil {
		return store.Folder{}, err
	}
	return s.store.GetFolder(ctx, userID, folderID)
}

func defaultFolderError() *DomainError {
	return domainError(http.StatusForbidden, "DEFAULT_FOLDER", "Default folders cannot be changed or deleted", nil)
}

// DeleteFolder refuses default folders before touching anything. For other
// folders it removes every document blob, then the document rows, then the
// folder row. A failure part way leaves whatever was already removed gone.
func (s *Service) DeleteFolder(ctx context.Context, userID, folderID string) error {
	folder, err := s.store.GetFolder(ctx, userID, folderID)
	if err != nil {
		return err
	}
	if folder.IsDefault {
		return defaultFolderError()
	}

	documents, err := s.store.ListDocuments(ctx, userID, folderID)
	if err != nil {
		return err
	}
	for _, doc := range documents {
		if err := s.removeBlob(ctx, s.cfg.Buckets.Records, doc.StoragePath); err != nil {
			return fmt.Errorf("delete document %s: %w", doc.ID, err)
		}
	}
	if err := s.store.DeleteFolderDocuments(ctx, userID, folderID); err != nil {
		return err
	}
	for _, doc := range documents {
		s.search.Delete(search.ResultRecord, doc.ID)
	}

	affected, err := s.store.DeleteFolder(ctx, userID, folderID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return defaultFolderError()
	}
	return nil
}

func (s *Service) ListDocuments(ctx context.Context, userID, folderID string) ([]store.Document, error) {
	if _, err := s.store.GetFolder(ctx, userID, folderID); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, userID, folderID)
}

func (s *Service) UploadDocument(ctx context.Context, userID, folderID string, upload Upload) (store.Document, error) {
	if _, err := s.store.GetFolder(ctx, userID, folderID); err != nil {
		return store.Document{}, err
	}
	if strings.TrimSpace(upload.Name) == "" {
		return store.Document{}, validationError("A file is required", nil)
	}

	key := catalog.DocumentPath(userID, folderID, upload.Name, s.now())
	info, err := s.blobs.Put(ctx, s.cfg.Buckets.Records, key, upload.Body, upload.Size, uploadOptions(upload, map[string]string{"user-id": userID}))
	if err != nil {
		return store.Document{}, fmt.Errorf("upload document: %w", err)
	}

	doc := store.Document{
		ID:          util.NewID(),
		FolderID:    folderID,
		UserID:      userID,
		Name:        upload.Name,
		SizeBytes:   info.Size,
		MimeType:    info.ContentType,
		StoragePath: key,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		// The row is the record of the upload; without it the blob is unreachable.
		if cleanupErr := s.removeBlob(ctx, s.cfg.Buckets.Records, key); cleanupErr != nil {
			log.Printf("records: remove orphaned upload %s: %v", key, cleanupErr)
		}
		return store.Document{}, err
	}
	s.search.IndexRecord(search.DocumentRecord{ID: doc.ID, UserID: userID, FolderID: folderID, Name: doc.Name})
	return doc, nil
}

func (s *Service) DocumentURL(ctx context.Context, userID, documentID string) (SignedURL, error) {
	doc, err := s.store.GetDocument(ctx, userID, documentID)
	if err != nil {
		return SignedURL{}, err
	}
	return s.signedURL(ctx, s.cfg.Buckets.Records, doc.StoragePath)
}

func (s *Service) DeleteDocument(ctx context.Context, userID, documentID string) error {
	doc, err := s.store.GetDocument(ctx, userID, documentID)
	if err != nil {
		return err
	}
	if err := s.removeBlob(ctx, s.cfg.Buckets.Records, doc.StoragePath); err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, userID, documentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	s.search.Delete(search.ResultRecord, documentID)
	return nil
}
