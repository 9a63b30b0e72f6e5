package journal

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// exportContentType is the media type of Export archives.
const exportContentType = "application/zstd"

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ObjectPresigner is the subset of the S3 presign client used for links.
type ObjectPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ExportKey returns the S3 key for an archive of kioskID created at t.
func ExportKey(kioskID string, t time.Time) string {
	if kioskID == "" {
		kioskID = "unknown"
	}
	return path.Join("journal", kioskID, t.UTC().Format("20060102T150405Z")+".jsonl.zst")
}

// UploadExport uploads an Export archive to bucket/key.
func UploadExport(ctx context.Context, client ObjectPutter, bucket, key string, body io.Reader) error {
	log.Debug().Str("bucket", bucket).Str("key", key).Msg("Uploading journal export to S3")

	contentType := exportContentType
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        body,
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("upload journal export to S3: %w", err)
	}

	log.Info().Str("bucket", bucket).Str("key", key).Msg("Journal export uploaded to S3")
	return nil
}

// PresignExport returns a pre-signed GET URL for an uploaded archive.
func PresignExport(ctx context.Context, presigner ObjectPresigner, bucket, key string, expiry time.Duration) (string, error) {
	result, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}
