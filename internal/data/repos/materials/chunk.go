package materials

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type ChunkRepo interface {
	CreateBatch(dbc dbctx.Context, chunks []*types.DocumentChunk) error
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error)
	ListMissingEmbedding(dbc dbctx.Context, documentID uuid.UUID, limit int) ([]*types.DocumentChunk, error)
	// SetEmbedding writes vec only if the chunk has no embedding yet.
	SetEmbedding(dbc dbctx.Context, id uuid.UUID, vec datatypes.JSON, at time.Time) (bool, error)
	RecordEmbedFailure(dbc dbctx.Context, id uuid.UUID, msg string) error
	Counts(dbc dbctx.Context, documentID uuid.UUID) (total int64, embedded int64, err error)
	ListEmbeddedForOwner(dbc dbctx.Context, ownerID uuid.UUID, documentIDs []uuid.UUID) ([]*types.DocumentChunk, error)
	DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *chunkRepo) CreateBatch(dbc dbctx.Context, chunks []*types.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, c := range chunks {
		if c == nil {
			continue
		}
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.CreatedAt = now
		c.UpdatedAt = now
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).CreateInBatches(chunks, 200).Error
}

func (r *chunkRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.DocumentChunk, error) {
	out := []*types.DocumentChunk{}
	if documentID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("ordinal ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) ListMissingEmbedding(dbc dbctx.Context, documentID uuid.UUID, limit int) ([]*types.DocumentChunk, error) {
	out := []*types.DocumentChunk{}
	if documentID == uuid.Nil {
		return out, nil
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("document_id = ? AND embedding IS NULL", documentID).
		Order("ordinal ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) SetEmbedding(dbc dbctx.Context, id uuid.UUID, vec datatypes.JSON, at time.Time) (bool, error) {
	if id == uuid.Nil || len(vec) == 0 {
		return false, nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Where("id = ? AND embedding IS NULL", id).
		Updates(map[string]interface{}{
			"embedding":   vec,
			"embedded_at": at,
			"embed_error": "",
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *chunkRepo) RecordEmbedFailure(dbc dbctx.Context, id uuid.UUID, msg string) error {
	if id == uuid.Nil {
		return nil
	}
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Where("id = ? AND embedding IS NULL", id).
		Updates(map[string]interface{}{
			"embed_error":    msg,
			"embed_attempts": gorm.Expr("embed_attempts + 1"),
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *chunkRepo) Counts(dbc dbctx.Context, documentID uuid.UUID) (int64, int64, error) {
	var total, embedded int64
	t := r.dbx(dbc).WithContext(dbc.Ctx)
	if err := t.Model(&types.DocumentChunk{}).
		Where("document_id = ?", documentID).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := t.Model(&types.DocumentChunk{}).
		Where("document_id = ? AND embedding IS NOT NULL", documentID).
		Count(&embedded).Error; err != nil {
		return 0, 0, err
	}
	return total, embedded, nil
}

// ListEmbeddedForOwner returns embedded chunks owned by ownerID. An empty
// documentIDs means every document the owner has.
func (r *chunkRepo) ListEmbeddedForOwner(dbc dbctx.Context, ownerID uuid.UUID, documentIDs []uuid.UUID) ([]*types.DocumentChunk, error) {
	out := []*types.DocumentChunk{}
	if ownerID == uuid.Nil {
		return out, nil
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("owner_id = ? AND embedding IS NOT NULL", ownerID)
	if len(documentIDs) > 0 {
		q = q.Where("document_id IN ?", documentIDs)
	}
	if err := q.Order("document_id ASC, ordinal ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) DeleteByDocument(dbc dbctx.Context, documentID uuid.UUID) error {
	if documentID == uuid.Nil {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Delete(&types.DocumentChunk{}).Error
}
