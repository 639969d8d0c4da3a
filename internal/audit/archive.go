package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("stride/audit")

// Source lists entries for export. The Postgres store implements it.
type Source interface {
	ListAuditEntries(ctx context.Context, filter Filter) ([]Entry, error)
}

// ObjectStore is the subset of *minio.Client the archiver uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewMinioClient connects to an S3-compatible endpoint with static credentials.
func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// Archiver copies a day of audit entries to object storage as CSV.
type Archiver struct {
	source  Source
	objects ObjectStore
	bucket  string
}

func NewArchiver(source Source, objects ObjectStore, bucket string) *Archiver {
	return &Archiver{source: source, objects: objects, bucket: bucket}
}

// ObjectKey is audit/YYYY/MM/DD.csv for the UTC day.
func ObjectKey(day time.Time) string {
	return day.UTC().Format("audit/2006/01/02.csv")
}

// ArchiveDay writes every entry created on day (UTC) and returns the object key
// and entry count. Re-running a day overwrites the object.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) (string, int, error) {
	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	key := ObjectKey(start)

	ctx, span := tracer.Start(ctx, "audit.ArchiveDay",
		trace.WithAttributes(
			attribute.String("s3.bucket", a.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	entries, err := a.source.ListAuditEntries(ctx, Filter{
		From:      start,
		To:        start.Add(24 * time.Hour),
		Ascending: true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list entries")
		return "", 0, fmt.Errorf("list audit entries: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries); err != nil {
		return "", 0, err
	}

	if err := a.ensureBucket(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ensure bucket")
		return "", 0, err
	}

	_, err = a.objects.PutObject(ctx, a.bucket, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload archive")
		return "", 0, fmt.Errorf("upload audit archive: %w", err)
	}

	span.SetAttributes(attribute.Int("audit.entries", len(entries)))
	span.SetStatus(codes.Ok, "archived")
	return key, len(entries), nil
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	exists, err := a.objects.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.objects.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}
