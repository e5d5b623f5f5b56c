package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// HistoryArchiveStore is the slice of domain.HistoryStore the archiver needs.
type HistoryArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.HistoryEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// Archiver implements domain.Archiver. It serialises history older than a
// cutoff to JSONL, uploads it, confirms the object exists, and only then
// deletes the rows from the primary store.
type Archiver struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	history HistoryArchiveStore
	audit   domain.AuditStore
	now     func() time.Time
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, history HistoryArchiveStore, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer:  writer,
		reader:  reader,
		history: history,
		audit:   audit,
		now:     time.Now,
	}
}

// ArchiveHistory moves entries created before the cutoff to object storage
// and returns how many rows were archived.
func (a *Archiver) ArchiveHistory(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.history.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history marshal: %w", err)
	}

	path := ArchivePath(before, a.now())
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history upload: %w", err)
	}

	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history verify: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("s3blob: archive history verify: %s missing after upload", path)
	}

	deleted, err := a.history.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history delete: %w", err)
	}

	count := int64(len(entries))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.history", map[string]any{
			"path":    path,
			"count":   count,
			"deleted": deleted,
			"before":  before.UTC().Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive history audit log: %w", err)
		}
	}
	return count, nil
}

// ArchivePath builds the object path for one archive run, partitioned by the
// cutoff month and stamped with the run time so reruns never overwrite:
//
//	2026-09/20261016T030000Z.jsonl
func ArchivePath(before, runAt time.Time) string {
	return fmt.Sprintf("%s/%s.jsonl", before.UTC().Format("2006-01"), runAt.UTC().Format("20060102T150405Z"))
}

// marshalJSONL serialises records as newline-delimited JSON.
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

// maxJSONLLine bounds a single archived record.
const maxJSONLLine = 1 << 20

// ReadHistory downloads one archive object and decodes its entries.
func ReadHistory(ctx context.Context, reader domain.BlobReader, path string) ([]domain.HistoryEntry, error) {
	body, err := reader.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var entries []domain.HistoryEntry
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxJSONLLine)
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e domain.HistoryEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("s3blob: %s line %d: %w", path, line, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", path, err)
	}
	return entries, nil
}

var _ domain.Archiver = (*Archiver)(nil)
