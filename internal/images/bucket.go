package images

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketConfig configures an S3-compatible image bucket.
type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Bucket stores images as objects in an S3-compatible bucket.
type Bucket struct {
	client *minio.Client
	bucket string
}

// NewBucket connects to the object store and creates the bucket if it does
// not exist yet.
func NewBucket(ctx context.Context, cfg BucketConfig) (*Bucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket: %w", err)
		}
		slog.Info("image bucket created", "bucket", cfg.Bucket)
	}

	return &Bucket{client: client, bucket: cfg.Bucket}, nil
}

// Save uploads content as a newly named object.
func (b *Bucket) Save(ctx context.Context, originalName string, content []byte) (string, error) {
	name := NewName(originalName)

	_, err := b.client.PutObject(ctx, b.bucket, name, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: contentType(name)},
	)
	if err != nil {
		return "", fmt.Errorf("uploading image: %w", err)
	}
	return name, nil
}

// Delete removes the named object. Removing a missing object succeeds.
func (b *Bucket) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := b.client.RemoveObject(ctx, b.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("removing image: %w", err)
	}
	return nil
}

// Exists reports whether the named object is present.
func (b *Bucket) Exists(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}

	_, err := b.client.StatObject(ctx, b.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking image: %w", err)
	}
	return true, nil
}

// Handler streams stored objects by name. Mount it with the public prefix
// stripped.
func (b *Bucket) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path
		if len(name) > 0 && name[0] == '/' {
			name = name[1:]
		}
		if checkName(name) != nil {
			http.NotFound(w, r)
			return
		}

		obj, err := b.client.GetObject(r.Context(), b.bucket, name, minio.GetObjectOptions{})
		if err != nil {
			slog.Error("failed to get image object", "name", name, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		defer obj.Close()

		info, err := obj.Stat()
		if err != nil {
			if isNoSuchKey(err) {
				http.NotFound(w, r)
				return
			}
			slog.Error("failed to stat image object", "name", name, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if info.ContentType != "" {
			w.Header().Set("Content-Type", info.ContentType)
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		http.ServeContent(w, r, name, info.LastModified, obj)
	})
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func contentType(name string) string {
	if t := mime.TypeByExtension("." + Extension(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
