package repository

import (
	"context"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/drawing-quotes/internal/knowledge"
)

// ChunkRepository persists knowledge chunks. It satisfies knowledge.Store.
type ChunkRepository interface {
	ReplaceSource(ctx context.Context, source string, chunks []knowledge.Chunk) error
	DeleteSource(ctx context.Context, source string) error
	All(ctx context.Context) ([]knowledge.Chunk, error)
	Sources(ctx context.Context) ([]knowledge.SourceInfo, error)
}

type chunkRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewChunkRepository(db *DB, logger *slog.Logger) ChunkRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &chunkRepository{db: db, logger: logger}
}

// ReplaceSource deletes every chunk of source and inserts chunks in one transaction.
func (r *chunkRepository) ReplaceSource(ctx context.Context, source string, chunks []knowledge.Chunk) error {
	tx, err := r.db.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	b := r.db.builder()

	q, args := b.Delete("chunks").Where(entsql.EQ("source", source)).Query()
	if err := tx.Exec(ctx, q, args, nil); err != nil {
		_ = tx.Rollback()
		r.logger.Error("failed to delete chunks", "source", source, "error", err)
		return fmt.Errorf("delete chunks: %w", err)
	}

	const batch = 200
	for start := 0; start < len(chunks); start += batch {
		end := start + batch
		if end > len(chunks) {
			end = len(chunks)
		}
		ins := b.Insert("chunks").Columns("source", "page", "chunk_index", "text")
		for _, c := range chunks[start:end] {
			ins.Values(source, c.Page, c.Index, c.Text)
		}
		q, args := ins.Query()
		if err := tx.Exec(ctx, q, args, nil); err != nil {
			_ = tx.Rollback()
			r.logger.Error("failed to insert chunks", "source", source, "error", err)
			return fmt.Errorf("insert chunks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.logger.Debug("chunks replaced", "source", source, "chunks", len(chunks))
	return nil
}

func (r *chunkRepository) DeleteSource(ctx context.Context, source string) error {
	q, args := r.db.builder().Delete("chunks").Where(entsql.EQ("source", source)).Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to delete chunks", "source", source, "error", err)
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

func (r *chunkRepository) All(ctx context.Context) ([]knowledge.Chunk, error) {
	b := r.db.builder()
	q, args := b.Select("source", "page", "chunk_index", "text").
		From(b.Table("chunks")).
		OrderBy("source", "page", "chunk_index").
		Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []knowledge.Chunk
	for rows.Next() {
		var c knowledge.Chunk
		if err := rows.Scan(&c.Source, &c.Page, &c.Index, &c.Text); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *chunkRepository) Sources(ctx context.Context) ([]knowledge.SourceInfo, error) {
	b := r.db.builder()
	q, args := b.Select("source", "COUNT(DISTINCT page)", entsql.Count("*")).
		From(b.Table("chunks")).
		GroupBy("source").
		OrderBy("source").
		Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []knowledge.SourceInfo
	for rows.Next() {
		var s knowledge.SourceInfo
		if err := rows.Scan(&s.Source, &s.Pages, &s.Chunks); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
