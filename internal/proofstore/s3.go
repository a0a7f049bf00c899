// Package proofstore keeps campaign proof files in S3. Records in the
// database hold object keys only; bytes live in the bucket.
package proofstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ads360.org/internal/config"
	"ads360.org/internal/obs"
)

// MaxProofFileSize caps proof uploads at 10MB.
const MaxProofFileSize = 10 * 1024 * 1024

const folderProofs = "proofs"

// Allowed proof MIME types and extensions.
var (
	allowedTypes = map[string]struct{}{
		"image/jpeg":      {},
		"image/png":       {},
		"image/webp":      {},
		"application/pdf": {},
	}
	allowedExtensions = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".webp": "image/webp",
		".pdf":  "application/pdf",
	}
)

// S3 uploads proof objects and issues pre-signed download URLs.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      config.AWSConfig
}

// NewS3 creates the client. Static credentials from config win over the
// default chain; a custom endpoint enables S3-compatible stores.
func NewS3(ctx context.Context, cfg config.AWSConfig) (*S3, error) {
	if strings.TrimSpace(cfg.ProofsBucket) == "" {
		return nil, fmt.Errorf("proofstore: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	} else {
		obs.Logger().Printf("proofstore: using default AWS credential chain")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	return &S3{client: client, uploader: uploader, cfg: cfg}, nil
}

// ValidFileType reports whether the content type or file extension is
// accepted for proofs.
func ValidFileType(contentType, filename string) bool {
	if _, ok := allowedTypes[strings.ToLower(contentType)]; ok {
		return true
	}
	_, ok := allowedExtensions[strings.ToLower(path.Ext(filename))]
	return ok
}

// ContentTypeForFilename maps a proof filename to its MIME type.
func ContentTypeForFilename(filename string) string {
	if ct, ok := allowedExtensions[strings.ToLower(path.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ObjectKey builds the key proofs/{campaign_id}/{proof_id}{ext}.
func ObjectKey(campaignID, proofID, filename string) string {
	return path.Join(folderProofs, campaignID, proofID+strings.ToLower(path.Ext(filename)))
}

// Upload streams a proof to the bucket and returns its object key.
func (s *S3) Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error {
	var lengthPtr *int64
	if contentLength > 0 {
		lengthPtr = &contentLength
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.ProofsBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: lengthPtr,
	})
	if err != nil {
		return fmt.Errorf("upload proof: %w", err)
	}
	return nil
}

// DownloadURL returns a pre-signed GET URL for a stored proof.
func (s *S3) DownloadURL(ctx context.Context, key string) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.ProofsBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.presignExpire()
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// Delete removes a proof object, used when a campaign is deleted.
func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.ProofsBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete proof: %w", err)
	}
	return nil
}

func (s *S3) presignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}
