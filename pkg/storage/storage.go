// Package storage wraps the MinIO object store holding attachment documents
// (photos, scanned papers) for detainee records.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is the attachment storage surface used by the handlers.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	// UploadThumbnail stores a downsized copy of an image attachment and
	// returns its key. Non-image data is reported as an error.
	UploadThumbnail(ctx context.Context, key string, data []byte) (string, error)
}

type minioStore struct {
	client *minio.Client
	bucket string
}

// thumbnailWidth is the target width for list-view thumbnails; height keeps
// the aspect ratio.
const thumbnailWidth = 256

// NewFromEnv builds the store from MINIO_ENDPOINT, MINIO_ACCESS_KEY,
// MINIO_SECRET_KEY, MINIO_BUCKET and MINIO_USE_SSL, creating the bucket if
// missing. Returns (nil, nil) when MINIO_ENDPOINT is unset so attachment
// endpoints can degrade gracefully in deployments without object storage.
func NewFromEnv(ctx context.Context) (ObjectStore, error) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}
	bucket := os.Getenv("MINIO_BUCKET")
	if bucket == "" {
		bucket = "qayd-documents"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
		Secure: strings.EqualFold(os.Getenv("MINIO_USE_SSL"), "true"),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &minioStore{client: client, bucket: bucket}, nil
}

func (s *minioStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *minioStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (s *minioStore) UploadThumbnail(ctx context.Context, key string, data []byte) (string, error) {
	thumb, err := Thumbnail(data)
	if err != nil {
		return "", err
	}
	thumbKey := "thumbs/" + key + ".jpg"
	if err := s.Upload(ctx, thumbKey, thumb, "image/jpeg"); err != nil {
		return "", err
	}
	return thumbKey, nil
}

// Thumbnail decodes an image and re-encodes a width-bounded JPEG copy.
func Thumbnail(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	resized := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	var out bytes.Buffer
	if err := jpeg.Encode(&out, resized, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return out.Bytes(), nil
}
