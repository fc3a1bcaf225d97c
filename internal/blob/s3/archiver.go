package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

const archivePrefix = "archive/actions/"

// Archiver uploads the action journal of a run as one JSONL object.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. reader and audit may be nil; without a
// reader existing archives are overwritten, without audit nothing is
// logged.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, reader: reader, audit: audit}
}

// ArchiveRun uploads records to archive/actions/YYYY-MM-DD/<runID>.jsonl and
// returns the path. An empty journal uploads nothing.
func (a *Archiver) ArchiveRun(ctx context.Context, runID string, records []domain.ActionRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	path := archivePath(runID, records[0].RecordedAt)

	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive run %s: %w", runID, err)
		}
		if exists {
			return path, fmt.Errorf("s3blob: archive run %s: %s: %w", runID, path, domain.ErrAlreadyExists)
		}
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s marshal: %w", runID, err)
	}
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive run %s upload: %w", runID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.actions", map[string]any{
			"path":   path,
			"run_id": runID,
			"count":  len(records),
		}); err != nil {
			return path, fmt.Errorf("s3blob: archive run %s audit log: %w", runID, err)
		}
	}
	return path, nil
}

// List returns the stored run archives.
func (a *Archiver) List(ctx context.Context) ([]domain.BlobInfo, error) {
	if a.reader == nil {
		return nil, nil
	}
	return a.reader.List(ctx, archivePrefix)
}

// archivePath partitions archives by the day of their first record.
//
//	archive/actions/2025-01-31/<run id>.jsonl
func archivePath(runID string, first time.Time) string {
	return fmt.Sprintf("%s%s/%s.jsonl", archivePrefix, first.UTC().Format("2006-01-02"), runID)
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
