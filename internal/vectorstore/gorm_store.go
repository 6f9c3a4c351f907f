// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/noldarim/ragbus/internal/config"
	"github.com/noldarim/ragbus/internal/embedding"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	insertBatchSize = 100
	scanBatchSize   = 500
)

// ChunkRecord is the persisted form of a Document.
type ChunkRecord struct {
	Seq       uint      `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"uniqueIndex;size:36;not null"`
	Source    string    `gorm:"index;not null"`
	Content   string    `gorm:"type:text;not null"`
	Embedding []float32 `gorm:"serializer:json;not null"`
	CreatedAt time.Time
}

// TableName pins the table name.
func (ChunkRecord) TableName() string {
	return "chunks"
}

// GormStore persists chunks through GORM on SQLite or PostgreSQL and ranks
// them by cosine similarity in process.
type GormStore struct {
	db       *gorm.DB
	embedder embedding.Embedder
	reset    bool
}

// NewGormStore opens the database described by cfg.
func NewGormStore(cfg *config.StoreConfig, embedder embedding.Embedder) (*GormStore, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.GetDSN())
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &GormStore{db: db, embedder: embedder, reset: cfg.ResetOnStart}, nil
}

// AutoMigrate creates the chunks table, dropping it first when the store
// was configured to reset on start.
func (s *GormStore) AutoMigrate() error {
	if s.reset && s.db.Migrator().HasTable(&ChunkRecord{}) {
		if err := s.db.Migrator().DropTable(&ChunkRecord{}); err != nil {
			return fmt.Errorf("failed to reset chunks table: %w", err)
		}
		getLog().Info().Msg("Dropped previously indexed chunks")
	}
	if err := s.db.AutoMigrate(&ChunkRecord{}); err != nil {
		return fmt.Errorf("failed to migrate chunks table: %w", err)
	}
	return nil
}

// ValidateSchema checks that the chunks table and its columns exist.
func (s *GormStore) ValidateSchema() error {
	if !s.db.Migrator().HasTable(&ChunkRecord{}) {
		return fmt.Errorf("missing table: chunks")
	}
	var missing []string
	for _, col := range []string{"seq", "id", "source", "content", "embedding", "created_at"} {
		if !s.db.Migrator().HasColumn(&ChunkRecord{}, col) {
			missing = append(missing, "chunks."+col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns: %v", missing)
	}
	return nil
}

func (s *GormStore) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	records := make([]ChunkRecord, len(docs))
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = uuid.New().String()
		}
		records[i] = ChunkRecord{
			ID:        id,
			Source:    sourceOrUnknown(d.Source),
			Content:   d.Content,
			Embedding: vectors[i],
		}
	}

	if err := s.db.WithContext(ctx).CreateInBatches(&records, insertBatchSize).Error; err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	getLog().Debug().Int("added", len(records)).Msg("Indexed documents")
	return nil
}

func (s *GormStore) Query(ctx context.Context, text string, n int) ([]Match, error) {
	if n <= 0 {
		return nil, nil
	}
	q, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var candidates []scored
	var batch []ChunkRecord
	result := s.db.WithContext(ctx).
		FindInBatches(&batch, scanBatchSize, func(_ *gorm.DB, _ int) error {
			for _, r := range batch {
				candidates = append(candidates, scored{
					doc:   Document{ID: r.ID, Content: r.Content, Source: r.Source},
					score: embedding.Cosine(q, r.Embedding),
					seq:   int(r.Seq),
				})
			}
			return nil
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to scan chunks: %w", result.Error)
	}

	return topN(candidates, n), nil
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&ChunkRecord{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the database connection.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
