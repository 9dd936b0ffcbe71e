package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helios/lifecycle/pkg/model"
)

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// TemplateDefaults returns the defaults of a template owned by the
// organization. A template of another action type is rejected.
func (r *TemplateRepository) TemplateDefaults(ctx context.Context, organizationID, templateID uuid.UUID, actionType model.ActionType) (model.JSONB, error) {
	var tmpl model.ActionTemplate
	err := r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", templateID, organizationID).
		First(&tmpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("template %s not found for organization %s", templateID, organizationID)
	}
	if err != nil {
		return nil, err
	}
	if tmpl.ActionType != actionType {
		return nil, fmt.Errorf("template %s is for %s actions, not %s", templateID, tmpl.ActionType, actionType)
	}
	return tmpl.Defaults.Clone(), nil
}
