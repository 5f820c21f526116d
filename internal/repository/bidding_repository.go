package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gestao-docs-api/internal/models"
)

const biddingProtocolConstraint = "bidding_processes_protocol_key"

const biddingColumns = "id, title, protocol, sector_id, status, historic_stages, current_stage, current_stage_index, version, created_by, created_at, updated_at"

// BiddingRepository manages bidding processes.
type BiddingRepository struct {
	db *sqlx.DB
}

// NewBiddingRepository constructs a BiddingRepository.
func NewBiddingRepository(db *sqlx.DB) *BiddingRepository {
	return &BiddingRepository{db: db}
}

// Create inserts a new process. A clash on the protocol constraint yields ErrDuplicateProtocol.
func (r *BiddingRepository) Create(ctx context.Context, process *models.BiddingProcess) error {
	if process.ID == "" {
		process.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if process.CreatedAt.IsZero() {
		process.CreatedAt = now
	}
	process.UpdatedAt = now
	if process.Version == 0 {
		process.Version = 1
	}
	if process.HistoricStages == nil {
		process.HistoricStages = models.Stages{}
	}

	const query = `INSERT INTO bidding_processes (id, title, protocol, sector_id, status, historic_stages, current_stage, current_stage_index, version, created_by, created_at, updated_at)
		VALUES (:id, :title, :protocol, :sector_id, :status, :historic_stages, :current_stage, :current_stage_index, :version, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, process); err != nil {
		if isUniqueViolation(err, biddingProtocolConstraint) {
			return fmt.Errorf("create bidding process %s: %w", process.Protocol, ErrDuplicateProtocol)
		}
		return fmt.Errorf("create bidding process: %w", err)
	}
	return nil
}

// FindByID fetches a process by ID.
func (r *BiddingRepository) FindByID(ctx context.Context, id string) (*models.BiddingProcess, error) {
	query := "SELECT " + biddingColumns + " FROM bidding_processes WHERE id = $1"
	var process models.BiddingProcess
	if err := r.db.GetContext(ctx, &process, query, id); err != nil {
		return nil, err
	}
	return &process, nil
}

// List returns processes matching the filter with the total count.
func (r *BiddingRepository) List(ctx context.Context, filter models.BiddingFilter) ([]models.BiddingProcess, int, error) {
	base := "FROM bidding_processes WHERE 1=1"
	var conditions []string
	var args []interface{}
	if filter.SectorID != "" {
		conditions = append(conditions, fmt.Sprintf("sector_id = $%d", len(args)+1))
		args = append(args, filter.SectorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY updated_at DESC LIMIT %d OFFSET %d", biddingColumns, base, limit, offset)
	var processes []models.BiddingProcess
	if err := r.db.SelectContext(ctx, &processes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bidding processes: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count bidding processes: %w", err)
	}
	return processes, total, nil
}

// Update stores the process if its version is unchanged and bumps the version.
func (r *BiddingRepository) Update(ctx context.Context, process *models.BiddingProcess) error {
	process.UpdatedAt = time.Now().UTC()
	const query = `UPDATE bidding_processes SET title = :title, status = :status, historic_stages = :historic_stages,
		current_stage = :current_stage, current_stage_index = :current_stage_index, version = version + 1, updated_at = :updated_at
		WHERE id = :id AND version = :version`
	res, err := r.db.NamedExecContext(ctx, query, process)
	if err != nil {
		return fmt.Errorf("update bidding process: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update bidding process: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update bidding process %s: %w", process.ID, ErrVersionConflict)
	}
	process.Version++
	return nil
}
