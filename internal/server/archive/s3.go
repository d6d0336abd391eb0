// Package archive keeps snapshots of captured pages in S3-compatible object
// storage (MinIO in development).
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	now = time.Now
)

type Settings struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
	LinkExpiry   time.Duration
}

// Snapshot is what gets archived for one captured page.
type Snapshot struct {
	AccountID   string
	URL         string
	HTML        []byte
	ContentType string
	Markdown    string
}

type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

func NewS3(ctx context.Context, s Settings) (*S3, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	expiry := s.LinkExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &S3{client: client, presign: s3.NewPresignClient(client), bucket: s.Bucket, expiry: expiry}, nil
}

// Key returns a fresh object prefix for a snapshot owned by accountID.
func Key(accountID string) string {
	d := now().UTC()
	return fmt.Sprintf("snapshots/%s/%d/%02d/%02d/%v", accountID, d.Year(), d.Month(), d.Day(), uuid.New())
}

// Store uploads the raw page and, when present, its markdown rendering. It
// returns the key of the raw page object.
func (a *S3) Store(ctx context.Context, snap *Snapshot) (string, error) {
	prefix := Key(snap.AccountID)
	contentType := snap.ContentType
	if contentType == "" {
		contentType = "text/html"
	}

	htmlKey := prefix + "/page.html"
	_, err := putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(htmlKey),
		Body:        bytes.NewReader(snap.HTML),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"source-url": snap.URL},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", htmlKey, err)
	}

	if snap.Markdown != "" {
		mdKey := prefix + "/page.md"
		_, err = putObject(a.client, ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(mdKey),
			Body:        bytes.NewReader([]byte(snap.Markdown)),
			ContentType: aws.String("text/markdown; charset=utf-8"),
			Metadata:    map[string]string{"source-url": snap.URL},
		})
		if err != nil {
			return "", fmt.Errorf("put %s: %w", mdKey, err)
		}
	}

	return htmlKey, nil
}

// URL returns a time-limited download link for key.
func (a *S3) URL(ctx context.Context, key string) (string, error) {
	req, err := presignGetObject(a.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.expiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
