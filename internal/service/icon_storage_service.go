package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"go-identity-service/internal/domain"
	"go-identity-service/internal/repository"
)

const (
	maxIconSize    = 5 * 1024 * 1024 // 5 MB
	iconPathPrefix = "icons"
)

var (
	ErrIconTooBig          = errors.New("icon exceeds 5MB limit")
	ErrInvalidIconType     = errors.New("only JPEG and PNG icons are allowed")
	ErrIconBucketUnavailable = errors.New("icon bucket unavailable")
	ErrIconUploadFailed    = errors.New("icon upload failed")

	allowedIconTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
	}
)

// IconStorageService stores user profile icons in S3-compatible object
// storage and keeps User.IconURL pointing at the latest upload.
type IconStorageService struct {
	client        *minio.Client
	users         repository.UserRepository
	bucket        string
	publicBaseURL string
}

func NewIconStorageService(endpoint, accessKey, secretKey, bucket, publicBaseURL string, useSSL bool, users repository.UserRepository) (*IconStorageService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	svc := &IconStorageService{
		client:        client,
		users:         users,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
	if err := svc.ensureBucket(context.Background()); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *IconStorageService) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("%w: check bucket: %v", ErrIconBucketUnavailable, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("%w: create bucket: %v", ErrIconBucketUnavailable, err)
		}
	}
	return nil
}

// UploadIcon validates and stores the image, deletes the previous
// object if one exists, and updates the user's icon URL.
func (s *IconStorageService) UploadIcon(ctx context.Context, user *domain.User, file io.Reader, size int64, contentType string) (string, error) {
	if size > maxIconSize {
		return "", ErrIconTooBig
	}
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	ext, allowed := allowedIconTypes[normalized]
	if !allowed {
		return "", ErrInvalidIconType
	}

	objectKey := fmt.Sprintf("%s/%s/%s%s", iconPathPrefix, user.ID, uuid.NewString(), ext)
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, file, size, minio.PutObjectOptions{
		ContentType: normalized,
		UserMetadata: map[string]string{
			"User-ID":     user.ID,
			"Uploaded-At": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIconUploadFailed, err)
	}

	s.removePrevious(ctx, user)

	iconURL := s.publicBaseURL + "/" + objectKey
	user.IconURL = &iconURL
	if err := s.users.Update(user); err != nil {
		return "", err
	}
	return iconURL, nil
}

// DeleteIcon removes the stored object and clears the user's icon URL.
func (s *IconStorageService) DeleteIcon(ctx context.Context, user *domain.User) error {
	s.removePrevious(ctx, user)
	user.IconURL = nil
	return s.users.Update(user)
}

// removePrevious is best effort: an orphaned object costs storage, a
// failed profile update costs the user their icon.
func (s *IconStorageService) removePrevious(ctx context.Context, user *domain.User) {
	if user.IconURL == nil {
		return
	}
	key, ok := strings.CutPrefix(*user.IconURL, s.publicBaseURL+"/")
	if !ok {
		// Externally hosted (e.g. a provider avatar); nothing to delete.
		return
	}
	_ = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
