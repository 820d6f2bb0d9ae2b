package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/canteen/internal/entity"
)

var sqlTracer = otel.Tracer("github.com/Additional-Code/canteen/store/sql")

// SQL stores values as rows of the kv_entries table.
type SQL struct {
	writer *bun.DB
	reader *bun.DB
}

// NewSQL builds a store over the writer and (optional) reader connections.
func NewSQL(writer, reader *bun.DB) *SQL {
	if reader == nil {
		reader = writer
	}
	return &SQL{writer: writer, reader: reader}
}

// Get reads a value through the reader connection. The ledger re-reads only on
// load, so replica lag is tolerable.
func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := sqlTracer.Start(ctx, "SQLStore.Get", trace.WithAttributes(attribute.String("store.key", key)))
	defer span.End()

	entry := new(entity.KVEntry)
	err := s.reader.NewSelect().Model(entry).Where("entry_key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return entry.Value, nil
}

// Set upserts the value for key.
func (s *SQL) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return errors.New("store key is required")
	}
	ctx, span := sqlTracer.Start(ctx, "SQLStore.Set", trace.WithAttributes(
		attribute.String("store.key", key),
		attribute.Int("store.bytes", len(value)),
	))
	defer span.End()

	entry := &entity.KVEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	q := s.writer.NewInsert().Model(entry)
	if s.writer.Dialect().Name() == dialect.MySQL {
		q = q.On("DUPLICATE KEY UPDATE").
			Set("entry_value = VALUES(entry_value)").
			Set("updated_at = VALUES(updated_at)")
	} else {
		q = q.On("CONFLICT (entry_key) DO UPDATE").
			Set("entry_value = EXCLUDED.entry_value").
			Set("updated_at = EXCLUDED.updated_at")
	}
	_, err := q.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
	}
	return err
}

// Delete removes key; deleting a missing key is not an error.
func (s *SQL) Delete(ctx context.Context, key string) error {
	ctx, span := sqlTracer.Start(ctx, "SQLStore.Delete", trace.WithAttributes(attribute.String("store.key", key)))
	defer span.End()

	_, err := s.writer.NewDelete().Model((*entity.KVEntry)(nil)).Where("entry_key = ?", key).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}
