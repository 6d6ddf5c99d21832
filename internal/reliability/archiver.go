// Package reliability archives reconciliation reports and critical system
// logs to S3-compatible object storage, grounded on the teacher's
// R2BackupService (internal/reliability/r2_backup_service.go): the same
// upload/list-against-a-bucket shape, with upload failures logged rather
// than returned, narrowed from a full tar.gz database
// backup to small per-record JSON documents (the offline audit trail spec
// section 4.6 implies reconciliation reports need, not a disaster-recovery
// snapshot — out of scope per spec.md section 1's "deployment scripts").
package reliability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Config configures the Archiver's destination bucket and endpoint. An
// Endpoint lets this point at an R2/MinIO-style S3-compatible store
// instead of AWS S3 itself, matching the teacher's Cloudflare R2 usage.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Archiver uploads small JSON documents (reconciliation reports, critical
// system log entries) to a bucket for offline/long-term retention. Uploads
// are best-effort: a failed upload is logged, not propagated, so archival
// never fails the job that calls it. Uploads run synchronously on the
// caller's goroutine; ListReconciliationReports does return its errors.
type Archiver struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// New builds an Archiver. It returns an error only if AWS SDK credential
// resolution itself fails; network reachability to the bucket is not
// checked until the first upload.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("reliability: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archiver{client: client, bucket: cfg.Bucket, log: log.With().Str("component", "reliability_archiver").Logger()}, nil
}

// ArchiveJSON uploads v as a JSON object under key. Errors are logged and
// swallowed; this never interrupts the caller's own workflow.
func (a *Archiver) ArchiveJSON(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("failed to marshal archive payload")
		return
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("failed to archive object")
		return
	}
	a.log.Debug().Str("key", key).Int("bytes", len(raw)).Msg("archived object")
}

// ReconciliationReportKey builds the object key for a reconciliation report
// archived by session id, bucketed by UTC date for easy browsing.
func ReconciliationReportKey(sessionID string, at time.Time) string {
	return fmt.Sprintf("reconciliation/%s/%s.json", at.UTC().Format("2006-01-02"), sessionID)
}

// SystemLogKey builds the object key for a single critical system log entry.
func SystemLogKey(id string, at time.Time) string {
	return fmt.Sprintf("system_logs/%s/%s.json", at.UTC().Format("2006-01-02"), id)
}

// ListReconciliationReports returns the object keys archived under the
// reconciliation/ prefix, most recent first, for operator review tooling.
func (a *Archiver) ListReconciliationReports(ctx context.Context) ([]string, error) {
	out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String("reconciliation/"),
	})
	if err != nil {
		return nil, fmt.Errorf("reliability: list reconciliation archive: %w", err)
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key != nil {
			keys = append(keys, *obj.Key)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}
