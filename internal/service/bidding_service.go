package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/repository"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
)

const biddingsResource = "bidding_processes"

type biddingStore interface {
	Create(ctx context.Context, process *models.BiddingProcess) error
	FindByID(ctx context.Context, id string) (*models.BiddingProcess, error)
	List(ctx context.Context, filter models.BiddingFilter) ([]models.BiddingProcess, int, error)
	Update(ctx context.Context, process *models.BiddingProcess) error
}

var biddingTransitions = map[models.BiddingStatus][]models.BiddingStatus{
	models.BiddingStatusDraft:      {models.BiddingStatusInProgress, models.BiddingStatusCancelled},
	models.BiddingStatusInProgress: {models.BiddingStatusApproved, models.BiddingStatusCancelled},
	models.BiddingStatusApproved:   {models.BiddingStatusCompleted, models.BiddingStatusInProgress},
}

// BiddingService persists bidding processes edited through a StageEditor.
type BiddingService struct {
	repo        biddingStore
	coordinator *ProtocolCoordinator
	audit       auditLogger
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewBiddingService constructs a BiddingService.
func NewBiddingService(repo biddingStore, coordinator *ProtocolCoordinator, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *BiddingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BiddingService{repo: repo, coordinator: coordinator, audit: audit, validator: validate, logger: logger, now: time.Now}
}

// Create opens a process in DRAFT with its initial stage and a fresh protocol.
func (s *BiddingService) Create(ctx context.Context, actor Actor, req dto.CreateBiddingRequest) (*models.BiddingProcess, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bidding payload")
	}
	sectorID := strings.TrimSpace(req.SectorID)
	if sectorID == "" {
		sectorID = actor.SectorID
	}
	if sectorID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sectorId is required")
	}
	title := strings.TrimSpace(req.InitialTitle)
	if title == "" {
		title = "Abertura"
	}
	process := &models.BiddingProcess{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(req.Title),
		SectorID:     sectorID,
		Status:       models.BiddingStatusDraft,
		CurrentStage: models.Stage{ID: uuid.NewString(), Title: title, Body: req.InitialBody, Signatures: []models.Signature{}},
		CreatedBy:    actor.UserID,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.coordinator.Mint(ctx, process); err != nil {
		return nil, err
	}
	err := s.coordinator.Save(ctx, process, func(ctx context.Context) error {
		return s.repo.Create(ctx, process)
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create bidding process")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionBiddingCreate, biddingsResource, process.ID, nil, process)
	return process, nil
}

// Get loads a process.
func (s *BiddingService) Get(ctx context.Context, id string) (*models.BiddingProcess, error) {
	process, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bidding process not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bidding process")
	}
	return process, nil
}

// List returns processes matching the filter.
func (s *BiddingService) List(ctx context.Context, filter models.BiddingFilter) ([]models.BiddingProcess, *models.Pagination, error) {
	processes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bidding processes")
	}
	return processes, paginationFor(filter.Limit, filter.Offset, total), nil
}

// ViewStage returns stage index of the process with its editability.
func (s *BiddingService) ViewStage(ctx context.Context, id string, index int) (*dto.StageView, error) {
	process, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	editor := NewStageEditor(*process, nil)
	stage, readOnly, err := editor.ViewStage(index)
	if err != nil {
		return nil, err
	}
	return &dto.StageView{Index: index, Stage: stage, ReadOnly: readOnly, Current: index == process.CurrentStageIndex}, nil
}

// UpdateBody replaces the current stage body.
func (s *BiddingService) UpdateBody(ctx context.Context, actor Actor, id string, req dto.UpdateStageBodyRequest) (*models.BiddingProcess, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stage payload")
	}
	return s.edit(ctx, id, req.Version, func(editor *StageEditor, _ *models.BiddingProcess) error {
		return editor.EditCurrentStageBody(req.Body)
	})
}

// AddSignature signs the current stage: the initial stage gets its single
// signer, later stages an inline signature tag.
func (s *BiddingService) AddSignature(ctx context.Context, actor Actor, id string, req dto.AddSignatureRequest) (*models.BiddingProcess, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid signature payload")
	}
	return s.edit(ctx, id, req.Version, func(editor *StageEditor, process *models.BiddingProcess) error {
		if process.CurrentStageIndex == 0 {
			return editor.SetInitialSigner(req.Signature)
		}
		return editor.AppendSignatureTag(req.Signature)
	})
}

// Advance finalizes the current stage and opens the next.
func (s *BiddingService) Advance(ctx context.Context, actor Actor, id string, req dto.AdvanceStageRequest) (*models.BiddingProcess, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid advance payload")
	}
	var from int
	process, err := s.edit(ctx, id, req.Version, func(editor *StageEditor, process *models.BiddingProcess) error {
		from = process.CurrentStageIndex
		if process.Status == models.BiddingStatusDraft {
			editor.SetStatus(models.BiddingStatusInProgress)
		}
		return editor.Advance(req.NextTitle)
	})
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionStageAdvance, biddingsResource, id,
		map[string]int{"stage": from}, map[string]interface{}{"stage": process.CurrentStageIndex, "title": req.NextTitle})
	return process, nil
}

// UpdateStatus moves the process along its lifecycle.
func (s *BiddingService) UpdateStatus(ctx context.Context, actor Actor, id string, req dto.UpdateBiddingStatusRequest) (*models.BiddingProcess, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	var previous models.BiddingStatus
	process, err := s.edit(ctx, id, req.Version, func(editor *StageEditor, process *models.BiddingProcess) error {
		previous = process.Status
		if !canTransition(previous, req.Status) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot move from %s to %s", previous, req.Status))
		}
		editor.SetStatus(req.Status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionBiddingStatus, biddingsResource, id,
		map[string]string{"status": string(previous)}, map[string]string{"status": string(req.Status)})
	return process, nil
}

func canTransition(from, to models.BiddingStatus) bool {
	for _, allowed := range biddingTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// edit loads the process, applies fn through a StageEditor and stores the
// result if nobody else saved it in between.
func (s *BiddingService) edit(ctx context.Context, id string, version int, fn func(*StageEditor, *models.BiddingProcess) error) (*models.BiddingProcess, error) {
	process, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if process.Version != version {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "bidding process was modified, reload and retry")
	}
	editor := NewStageEditor(*process, &BufferSurface{content: process.CurrentStage.Body})
	if err := fn(editor, process); err != nil {
		return nil, err
	}
	updated := editor.Process()
	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, "bidding process was modified, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save bidding process")
	}
	return &updated, nil
}
