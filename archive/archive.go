package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ariebrainware/educe-api/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver stores a finished report outside the database and returns the
// key it was stored under.
type Archiver interface {
	Archive(ctx context.Context, analysis model.AIAnalysis) (string, error)
}

// PutObjectAPI is the subset of the S3 client used for archiving.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes reports as private text objects.
type S3Archiver struct {
	client PutObjectAPI
	bucket string
}

// NewS3Archiver builds a client from the default AWS configuration chain.
func NewS3Archiver(ctx context.Context, bucket string) (*S3Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
		UsePathStyle: true,
	})
	return NewS3ArchiverWithClient(client, bucket), nil
}

func NewS3ArchiverWithClient(client PutObjectAPI, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

// Key is the object key of an analysis report.
func Key(analysis model.AIAnalysis) string {
	return fmt.Sprintf("reports/%s/%s.txt", analysis.ChildID, analysis.ID)
}

func (a *S3Archiver) Archive(ctx context.Context, analysis model.AIAnalysis) (string, error) {
	key := Key(analysis)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(analysis.Report)),
		ContentType: aws.String("text/plain; charset=utf-8"),
		ACL:         types.ObjectCannedACLPrivate,
		Metadata: map[string]string{
			"child-id":        analysis.ChildID,
			"request-id":      analysis.RequestID,
			"psychologist-id": analysis.PsychologistID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report %s to s3://%s: %w", key, a.bucket, err)
	}
	return key, nil
}

// Nop discards reports. Used when no bucket is configured.
type Nop struct{}

func (Nop) Archive(context.Context, model.AIAnalysis) (string, error) {
	return "", nil
}
