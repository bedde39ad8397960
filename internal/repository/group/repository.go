package group

import (
	"context"

	"github.com/jmoiron/sqlx"

	"guu-schedule-bot/internal/models"
	"guu-schedule-bot/internal/repository"
)

type groupRepository struct {
	db *sqlx.DB
}

func NewGroupRepository(db *sqlx.DB) repository.GroupRepository {
	return &groupRepository{db: db}
}

// ListGroups: группы не хранятся отдельно, они выводятся из занятий.
func (r *groupRepository) ListGroups(ctx context.Context) ([]models.Group, error) {
	query := `
        SELECT group_code, COUNT(*) AS entries
        FROM schedule_entries
        GROUP BY group_code
        ORDER BY group_code
    `

	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, err
	}
	return groups, nil
}
