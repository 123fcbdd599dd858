package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/storage"
)

// Record is one successful tabular answer. An empty or unusable ID gets a
// freshly generated one; TraceID is kept as object metadata only.
type Record struct {
	ID       string
	TraceID  string
	Question string
	SQL      string
	Headers  []string
	Rows     [][]any
}

type Config struct {
	Prefix string
}

// Archiver stores query results as parquet objects.
type Archiver struct {
	store  storage.ObjectStore
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

var resultIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

func New(store storage.ObjectStore, cfg Config, logger *slog.Logger) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Archiver{
		store:  store,
		prefix: cfg.Prefix,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (a *Archiver) Archive(ctx context.Context, record Record) (storage.ObjectInfo, error) {
	info, err := a.archive(ctx, record)
	if err != nil {
		observability.ObserveArchive("failed")
		return storage.ObjectInfo{}, err
	}
	observability.ObserveArchive("ok")
	a.logger.DebugContext(ctx, "query result archived",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("key", info.Key),
		slog.Int64("size", info.Size),
	)
	return info, nil
}

func (a *Archiver) archive(ctx context.Context, record Record) (storage.ObjectInfo, error) {
	producedAt := a.now()
	id := record.ID
	if !resultIDPattern.MatchString(id) {
		id = observability.NewTraceID()
	}
	key, err := storage.BuildResultPath(a.prefix, id, producedAt)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	encoded, err := EncodeParquet(record.Headers, record.Rows, map[string]string{
		"askql.question":    record.Question,
		"askql.sql":         record.SQL,
		"askql.produced_at": producedAt.Format(time.RFC3339Nano),
		"askql.trace_id":    record.TraceID,
	})
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	metadata := map[string]string{
		"result-id": id,
		"rows":      strconv.FormatInt(encoded.RecordCount, 10),
		"columns":   strconv.Itoa(len(encoded.Columns)),
	}
	if record.TraceID != "" {
		metadata["trace-id"] = record.TraceID
	}
	info, err := a.store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
		Metadata:    metadata,
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put %s: %w", key, err)
	}
	if info.Key == "" {
		info.Key = key
	}
	return info, nil
}

// Entry is one archived result as listed from the object store.
type Entry struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// List returns the results archived on the UTC day of day, ordered by key.
func (a *Archiver) List(ctx context.Context, day time.Time) ([]Entry, error) {
	prefix, err := storage.BuildResultDayPrefix(a.prefix, day)
	if err != nil {
		return nil, err
	}
	objects, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	entries := make([]Entry, 0, len(objects))
	for _, object := range objects {
		name := strings.TrimPrefix(object.Key, prefix)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		entries = append(entries, Entry{
			ID:           strings.TrimSuffix(name, ".parquet"),
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return entries, nil
}
