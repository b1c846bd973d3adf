package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wonny/clv-retention/internal/contracts"
	"github.com/wonny/clv-retention/pkg/config"
	"github.com/wonny/clv-retention/pkg/logger"
)

// ObjectPutter is the part of the S3 client the mirror needs
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from the default AWS credential chain
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg), nil
}

// S3Mirror uploads every artifact saved by the inner sink to a bucket.
// Upload failures are logged; the local artifacts stay authoritative.
type S3Mirror struct {
	inner  contracts.ReportSink
	client ObjectPutter
	bucket string
	prefix string
	log    *logger.Logger
}

// NewS3Mirror wraps inner with an S3 upload step
func NewS3Mirror(inner contracts.ReportSink, client ObjectPutter, bucket, prefix string, log *logger.Logger) *S3Mirror {
	return &S3Mirror{
		inner:  inner,
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}
}

// Save writes locally, then mirrors the three artifacts
func (m *S3Mirror) Save(ctx context.Context, rep *contracts.RunReport) (*contracts.ArtifactPaths, error) {
	paths, err := m.inner.Save(ctx, rep)
	if err != nil {
		return nil, err
	}

	for _, p := range []string{paths.ReportJSON, paths.LossCSV, paths.BlendedCSV} {
		uri, err := m.upload(ctx, p)
		if err != nil {
			m.log.WithError(err).WithField("file", filepath.Base(p)).Warn("Report mirror upload failed")
			continue
		}
		paths.Remote = append(paths.Remote, uri)
	}
	return paths, nil
}

func (m *S3Mirror) upload(ctx context.Context, local string) (string, error) {
	body, err := os.ReadFile(local)
	if err != nil {
		return "", err
	}

	key := filepath.Base(local)
	if m.prefix != "" {
		key = path.Join(m.prefix, key)
	}
	contentType := "text/csv"
	if strings.HasSuffix(key, ".json") {
		contentType = "application/json"
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", m.bucket, key, err)
	}
	return "s3://" + m.bucket + "/" + key, nil
}
