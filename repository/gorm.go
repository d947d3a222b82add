package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/floradex-app/server/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormUserRepository stores each User aggregate as one row in the
// user_documents table with the aggregate serialized into a JSON column.
// Version checks ride on the UPDATE's WHERE clause, so a conflicting write
// is rejected by the database rather than detected after the fact.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a repository backed by the given DB.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Get(ctx context.Context, id string) (*model.User, error) {
	var doc model.UserDocument
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(&doc)
}

func (r *GormUserRepository) Put(ctx context.Context, u *model.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Model(&model.UserDocument{}).
		Where("id = ? AND version = ?", u.ID, u.Version).
		Updates(map[string]interface{}{
			"version":  u.Version + 1,
			"username": u.Username,
			"data":     datatypes.JSON(data),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a stale version from a missing document.
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.UserDocument{}).
			Where("id = ?", u.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	u.Version++
	return nil
}

func (r *GormUserRepository) Create(ctx context.Context, u *model.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	doc := &model.UserDocument{
		ID:       u.ID,
		Username: u.Username,
		Version:  1,
		Data:     datatypes.JSON(data),
	}
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return err
	}
	u.Version = 1
	return nil
}

func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var doc model.UserDocument
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeDocument(&doc)
}

func (r *GormUserRepository) Scan(ctx context.Context, fn func(u *model.User) error) error {
	var docs []model.UserDocument
	return r.db.WithContext(ctx).FindInBatches(&docs, 100, func(_ *gorm.DB, _ int) error {
		for i := range docs {
			u, err := decodeDocument(&docs[i])
			if err != nil {
				return err
			}
			if err := fn(u); err != nil {
				return err
			}
		}
		return nil
	}).Error
}

func decodeDocument(doc *model.UserDocument) (*model.User, error) {
	u := &model.User{}
	if err := json.Unmarshal(doc.Data, u); err != nil {
		return nil, err
	}
	u.Version = doc.Version
	return u, nil
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
