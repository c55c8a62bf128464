package meta

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 封装对 lfs_objects 表的操作 (MetadataStore)
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveObject 按 Key 写入元数据，已存在则覆盖 (upsert)
func (r *Repository) SaveObject(ctx context.Context, m *ObjectMeta) error {
	return saveObject(r.db.GetConn().WithContext(ctx), m)
}

// SaveObjectTx 在调用方的事务中写入元数据
func (r *Repository) SaveObjectTx(tx *gorm.DB, m *ObjectMeta) error {
	return saveObject(tx, m)
}

func saveObject(tx *gorm.DB, m *ObjectMeta) error {
	if m.Key == "" {
		return fmt.Errorf("object meta key is empty")
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "object_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"size", "chunk_size", "extra", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("failed to save object meta: %w", err)
	}
	return nil
}

// FindObject 按 Key 查找元数据，不存在时返回 (nil, nil)
func (r *Repository) FindObject(ctx context.Context, key string) (*ObjectMeta, error) {
	var m ObjectMeta
	err := r.db.GetConn().WithContext(ctx).
		Where("object_key = ?", key).
		First(&m).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
