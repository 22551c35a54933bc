package materials

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lumen-backend/internal/domain/materials"
	"github.com/yungbote/lumen-backend/internal/platform/dbctx"
	"github.com/yungbote/lumen-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.SourceDocument) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SourceDocument, error)
	GetByOwnerAndID(dbc dbctx.Context, ownerID, id uuid.UUID) (*types.SourceDocument, error)
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.SourceDocument, error)
	ListOwnedIDs(dbc dbctx.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)

	// Transition moves id from one of from to to, applying updates in the same
	// statement. It reports false when the current status did not match.
	Transition(dbc dbctx.Context, id uuid.UUID, from []types.DocumentStatus, to types.DocumentStatus, updates map[string]interface{}) (bool, error)
	// Claim is Transition that also takes a stage lease under token. A row
	// already in to whose lease has expired can be reclaimed.
	Claim(dbc dbctx.Context, id uuid.UUID, from types.DocumentStatus, to types.DocumentStatus, now time.Time, leaseUntil time.Time, token string) (bool, error)
	// RenewLease extends the lease held under token while the row is still in
	// status. It reports false once another claim has taken the lease.
	RenewLease(dbc dbctx.Context, id uuid.UUID, status types.DocumentStatus, token string, now time.Time, leaseUntil time.Time) (bool, error)
	// ReleaseLease clears the lease held under token, applying updates in the
	// same statement, and leaves the status unchanged.
	ReleaseLease(dbc dbctx.Context, id uuid.UUID, status types.DocumentStatus, token string, updates map[string]interface{}) (bool, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// ListResumable returns documents that still have pipeline work and have
	// not been touched since before: registered or extracted rows, and rows
	// stuck in a working stage whose lease has expired.
	ListResumable(dbc dbctx.Context, before time.Time, limit int) ([]*types.SourceDocument, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.SourceDocument) error {
	if doc == nil {
		return nil
	}
	now := time.Now().UTC()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.ProcessingStatus == "" {
		doc.ProcessingStatus = types.StatusRegistered
	}
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return r.dbx(dbc).WithContext(dbc.Ctx).Create(doc).Error
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SourceDocument, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.SourceDocument
	err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *documentRepo) GetByOwnerAndID(dbc dbctx.Context, ownerID, id uuid.UUID) (*types.SourceDocument, error) {
	if ownerID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var out types.SourceDocument
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *documentRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.SourceDocument, error) {
	out := []*types.SourceDocument{}
	if ownerID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 200
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) ListOwnedIDs(dbc dbctx.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	out := []uuid.UUID{}
	if ownerID == uuid.Nil || len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.SourceDocument{}).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Pluck("id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) Transition(dbc dbctx.Context, id uuid.UUID, from []types.DocumentStatus, to types.DocumentStatus, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || len(from) == 0 {
		return false, nil
	}
	set := map[string]interface{}{}
	for k, v := range updates {
		set[k] = v
	}
	set["processing_status"] = to
	set["updated_at"] = time.Now().UTC()

	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.SourceDocument{}).
		Where("id = ? AND processing_status IN ?", id, from).
		Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *documentRepo) Claim(dbc dbctx.Context, id uuid.UUID, from types.DocumentStatus, to types.DocumentStatus, now time.Time, leaseUntil time.Time, token string) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.SourceDocument{}).
		Where("id = ?", id).
		Where("processing_status = ? OR (processing_status = ? AND (stage_lease_until IS NULL OR stage_lease_until < ?))", from, to, now).
		Updates(map[string]interface{}{
			"processing_status": to,
			"stage_lease_until": leaseUntil,
			"stage_lease_token": token,
			"updated_at":        now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *documentRepo) RenewLease(dbc dbctx.Context, id uuid.UUID, status types.DocumentStatus, token string, now time.Time, leaseUntil time.Time) (bool, error) {
	if id == uuid.Nil || token == "" {
		return false, nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.SourceDocument{}).
		Where("id = ? AND processing_status = ? AND stage_lease_token = ?", id, status, token).
		Updates(map[string]interface{}{
			"stage_lease_until": leaseUntil,
			"updated_at":        now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *documentRepo) ReleaseLease(dbc dbctx.Context, id uuid.UUID, status types.DocumentStatus, token string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || token == "" {
		return false, nil
	}
	set := map[string]interface{}{}
	for k, v := range updates {
		set[k] = v
	}
	set["stage_lease_until"] = nil
	set["stage_lease_token"] = ""
	set["updated_at"] = time.Now().UTC()

	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.SourceDocument{}).
		Where("id = ? AND processing_status = ? AND stage_lease_token = ?", id, status, token).
		Updates(set)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *documentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.SourceDocument{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *documentRepo) ListResumable(dbc dbctx.Context, before time.Time, limit int) ([]*types.SourceDocument, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.SourceDocument
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("updated_at < ?", before).
		Where("processing_status IN ? OR (processing_status IN ? AND (stage_lease_until IS NULL OR stage_lease_until < ?))",
			[]types.DocumentStatus{types.StatusRegistered, types.StatusExtracted},
			[]types.DocumentStatus{types.StatusExtracting, types.StatusEmbedding},
			before,
		).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the document and its chunks. Callers pass a transaction so
// both deletes commit together.
func (r *documentRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	t := r.dbx(dbc).WithContext(dbc.Ctx)
	if err := t.Where("document_id = ?", id).Delete(&types.DocumentChunk{}).Error; err != nil {
		return err
	}
	return t.Where("id = ?", id).Delete(&types.SourceDocument{}).Error
}
