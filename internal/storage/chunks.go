package db

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/lueurxax/franchise-support-bot/internal/core/domain"
)

// Cascading similarity thresholds for vector search. The strict tier is
// tried first; lower tiers are fallbacks that return as soon as any
// results appear.
var searchThresholdTiers = []float32{0.5, 0.3, 0.1}

const sqlSearchChunks = `
		SELECT id,
		       text,
		       source,
		       document_title,
		       section_heading,
		       is_checklist,
		       item_count,
		       is_official,
		       1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`

// SearchChunks performs a cosine similarity search over the knowledge base
// with cascading relevance thresholds: strict first, then progressively
// looser tiers until results appear. An empty result after the loosest
// tier means the knowledge base holds nothing relevant.
func (db *DB) SearchChunks(ctx context.Context, embedding []float32, topK int) ([]domain.Chunk, error) {
	for _, threshold := range searchThresholdTiers {
		chunks, err := db.searchChunksAtThreshold(ctx, embedding, threshold, topK)
		if err != nil {
			return nil, err
		}

		if len(chunks) > 0 {
			return chunks, nil
		}
	}

	return nil, nil
}

func (db *DB) searchChunksAtThreshold(ctx context.Context, embedding []float32, threshold float32, topK int) ([]domain.Chunk, error) {
	rows, err := db.Pool.Query(ctx, sqlSearchChunks, pgvector.NewVector(embedding), threshold, topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk

	for rows.Next() {
		var (
			c          domain.Chunk
			similarity float64
		)

		if err := rows.Scan(
			&c.ID,
			&c.Text,
			&c.Metadata.Source,
			&c.Metadata.DocumentTitle,
			&c.Metadata.SectionHeading,
			&c.Metadata.IsChecklist,
			&c.Metadata.ItemCount,
			&c.Metadata.IsOfficial,
			&similarity,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}

		c.Score = float32(similarity)
		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	return chunks, nil
}

// AllChunks loads every knowledge base chunk without its embedding. The
// in-memory lexical index is built from this at startup.
func (db *DB) AllChunks(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, text, source, document_title, section_heading, is_checklist, item_count, is_official
		FROM chunks
	`)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk

	for rows.Next() {
		var c domain.Chunk

		if err := rows.Scan(
			&c.ID,
			&c.Text,
			&c.Metadata.Source,
			&c.Metadata.DocumentTitle,
			&c.Metadata.SectionHeading,
			&c.Metadata.IsChecklist,
			&c.Metadata.ItemCount,
			&c.Metadata.IsOfficial,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}

		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	return chunks, nil
}

// InsertChunk stores a new knowledge base chunk. Used when folding a
// human-answered ticket back into the knowledge base.
func (db *DB) InsertChunk(ctx context.Context, chunk domain.Chunk, embedding []float32) (string, error) {
	var id string

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO chunks (text, embedding, source, document_title, section_heading, is_checklist, item_count, is_official)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		SanitizeUTF8(chunk.Text),
		pgvector.NewVector(embedding),
		chunk.Metadata.Source,
		chunk.Metadata.DocumentTitle,
		chunk.Metadata.SectionHeading,
		chunk.Metadata.IsChecklist,
		chunk.Metadata.ItemCount,
		chunk.Metadata.IsOfficial,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert chunk: %w", err)
	}

	return id, nil
}
