package upload

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Vivek9454/FalconEye/internal/store"
)

const uploadTimeout = 2 * time.Minute

// Uploader pushes recorded clips to an S3-compatible bucket and keeps
// the clip metadata's upload status current. Failed uploads stay marked
// pending so RetryPending can pick them up later.
type Uploader struct {
	client  *minio.Client
	bucket  string
	store   *store.Store
	clipDir string
}

// Config holds object-store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewUploaderFromEnv builds an uploader from MINIO_* environment
// variables. Returns an error when credentials are missing, which the
// caller treats as "cloud sync disabled".
func NewUploaderFromEnv(st *store.Store, clipDir string) (*Uploader, error) {
	cfg := Config{
		Endpoint:  getenv("MINIO_ENDPOINT", "localhost:9000"),
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		Bucket:    getenv("MINIO_BUCKET", "falconeye-clips"),
		UseSSL:    getenv("MINIO_USE_SSL", "false") == "true",
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("MINIO_ACCESS_KEY / MINIO_SECRET_KEY not configured")
	}
	return NewUploader(cfg, st, clipDir)
}

// NewUploader connects to the object store and ensures the bucket
// exists.
func NewUploader(cfg Config, st *store.Store, clipDir string) (*Uploader, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, existsErr := cli.BucketExists(ctx, cfg.Bucket)
		if existsErr != nil || !exists {
			return nil, fmt.Errorf("failed to create or verify bucket %s: %w", cfg.Bucket, err)
		}
	}

	log.Printf("[Upload] Connected to object store %s, bucket=%s", cfg.Endpoint, cfg.Bucket)
	return &Uploader{client: cli, bucket: cfg.Bucket, store: st, clipDir: clipDir}, nil
}

// UploadClip sends one clip file to the bucket and records the outcome
// in the metadata store.
func (u *Uploader) UploadClip(ctx context.Context, filename string) error {
	path := filepath.Join(u.clipDir, filename)
	f, err := os.Open(path)
	if err != nil {
		u.store.SetUploadStatus(filename, false, err.Error())
		return fmt.Errorf("failed to open clip %s: %w", filename, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		u.store.SetUploadStatus(filename, false, err.Error())
		return fmt.Errorf("failed to stat clip %s: %w", filename, err)
	}

	_, err = u.client.PutObject(ctx, u.bucket, filename, f, info.Size(),
		minio.PutObjectOptions{ContentType: "video/mp4"})
	if err != nil {
		u.store.SetUploadStatus(filename, false, err.Error())
		return fmt.Errorf("failed to upload clip %s: %w", filename, err)
	}

	if err := u.store.SetUploadStatus(filename, true, ""); err != nil {
		return fmt.Errorf("clip %s uploaded but status update failed: %w", filename, err)
	}
	log.Printf("[Upload] %s uploaded (%d bytes)", filename, info.Size())
	return nil
}

// UploadAsync fires an upload in the background; failures are logged
// and left for RetryPending.
func (u *Uploader) UploadAsync(filename string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		defer cancel()
		if err := u.UploadClip(ctx, filename); err != nil {
			log.Printf("[Upload] %v", err)
		}
	}()
}

// RetryPending walks every clip still marked un-uploaded and tries
// again, returning how many succeeded.
func (u *Uploader) RetryPending(ctx context.Context) (int, error) {
	pending, err := u.store.PendingUploads()
	if err != nil {
		return 0, fmt.Errorf("failed to list pending uploads: %w", err)
	}

	uploaded := 0
	for _, clip := range pending {
		if err := u.UploadClip(ctx, clip.Filename); err != nil {
			log.Printf("[Upload] Retry failed: %v", err)
			continue
		}
		uploaded++
	}
	if len(pending) > 0 {
		log.Printf("[Upload] Retried %d pending clips, %d succeeded", len(pending), uploaded)
	}
	return uploaded, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
