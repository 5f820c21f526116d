package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gestao-docs-api/internal/dto"
	"github.com/noah-isme/gestao-docs-api/internal/models"
	"github.com/noah-isme/gestao-docs-api/internal/repository"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
)

type biddingRepoStub struct {
	rows      map[string]models.BiddingProcess
	taken     map[string]bool
	updateErr error
}

func newBiddingRepoStub() *biddingRepoStub {
	return &biddingRepoStub{rows: map[string]models.BiddingProcess{}, taken: map[string]bool{}}
}

func (s *biddingRepoStub) Create(_ context.Context, p *models.BiddingProcess) error {
	if s.taken[p.Protocol] {
		return fmt.Errorf("create bidding process: %w", repository.ErrDuplicateProtocol)
	}
	p.Version = 1
	s.rows[p.ID] = cloneProcess(*p)
	return nil
}

func (s *biddingRepoStub) FindByID(_ context.Context, id string) (*models.BiddingProcess, error) {
	p, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := cloneProcess(p)
	return &out, nil
}

func (s *biddingRepoStub) List(context.Context, models.BiddingFilter) ([]models.BiddingProcess, int, error) {
	var out []models.BiddingProcess
	for _, p := range s.rows {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (s *biddingRepoStub) Update(_ context.Context, p *models.BiddingProcess) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.rows[p.ID].Version != p.Version {
		return fmt.Errorf("update bidding process: %w", repository.ErrVersionConflict)
	}
	p.Version++
	s.rows[p.ID] = cloneProcess(*p)
	return nil
}

func newBiddingFixture() (*BiddingService, *biddingRepoStub, *auditStub) {
	repo := newBiddingRepoStub()
	counter := NewCounterService(newMemoryCounterStore(), nil, nil)
	audit := &auditStub{}
	svc := NewBiddingService(repo, NewProtocolCoordinator(counter, 3, nil, nil), audit, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC) }
	return svc, repo, audit
}

func createBidding(t *testing.T, svc *BiddingService) *models.BiddingProcess {
	t.Helper()
	process, err := svc.Create(context.Background(), Actor{UserID: "u1", SectorID: "compras"}, dto.CreateBiddingRequest{
		Title:       "Pregão Eletrônico",
		InitialBody: "<p>Termo de referência</p>",
	})
	require.NoError(t, err)
	return process
}

func TestBiddingCreate(t *testing.T) {
	svc, repo, audit := newBiddingFixture()
	repo.taken["001/2024"] = true

	process := createBidding(t, svc)
	assert.Equal(t, "002/2024", process.Protocol)
	assert.Equal(t, models.BiddingStatusDraft, process.Status)
	assert.Equal(t, "Abertura", process.CurrentStage.Title)
	assert.Equal(t, 0, process.CurrentStageIndex)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionBiddingCreate, audit.entries[0].Action)

	_, err := svc.Create(context.Background(), Actor{}, dto.CreateBiddingRequest{Title: "Sem setor"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestBiddingWorkflow(t *testing.T) {
	svc, _, audit := newBiddingFixture()
	ctx := context.Background()
	actor := Actor{UserID: "u1"}
	process := createBidding(t, svc)

	process, err := svc.AddSignature(ctx, actor, process.ID, dto.AddSignatureRequest{Signature: models.Signature{Name: "Ana"}, Version: process.Version})
	require.NoError(t, err)
	assert.Equal(t, "Ana", process.CurrentStage.SignatureName)

	process, err = svc.Advance(ctx, actor, process.ID, dto.AdvanceStageRequest{NextTitle: "Parecer", Version: process.Version})
	require.NoError(t, err)
	assert.Equal(t, 1, process.CurrentStageIndex)
	assert.Equal(t, models.BiddingStatusInProgress, process.Status)

	process, err = svc.UpdateBody(ctx, actor, process.ID, dto.UpdateStageBodyRequest{Body: "<p>Favorável</p>", Version: process.Version})
	require.NoError(t, err)
	process, err = svc.AddSignature(ctx, actor, process.ID, dto.AddSignatureRequest{Signature: models.Signature{Name: "Bia"}, Version: process.Version})
	require.NoError(t, err)
	assert.Contains(t, process.CurrentStage.Body, "<p>Favorável</p><span class=\"signature-tag\"")
	require.Len(t, process.CurrentStage.Signatures, 1)

	view, err := svc.ViewStage(ctx, process.ID, 0)
	require.NoError(t, err)
	assert.True(t, view.ReadOnly)
	assert.False(t, view.Current)
	assert.Equal(t, "<p>Termo de referência</p>", view.Stage.Body)

	_, err = svc.ViewStage(ctx, process.ID, 2)
	assert.True(t, errors.Is(err, appErrors.ErrStageNotReached))

	process, err = svc.UpdateStatus(ctx, actor, process.ID, dto.UpdateBiddingStatusRequest{Status: models.BiddingStatusApproved, Version: process.Version})
	require.NoError(t, err)
	assert.Equal(t, models.BiddingStatusApproved, process.Status)

	_, err = svc.UpdateStatus(ctx, actor, process.ID, dto.UpdateBiddingStatusRequest{Status: models.BiddingStatusDraft, Version: process.Version})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	actions := make([]string, 0, len(audit.entries))
	for _, e := range audit.entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{models.AuditActionBiddingCreate, models.AuditActionStageAdvance, models.AuditActionBiddingStatus}, actions)
}

func TestBiddingStaleVersionIsRejected(t *testing.T) {
	svc, repo, _ := newBiddingFixture()
	ctx := context.Background()
	process := createBidding(t, svc)

	_, err := svc.UpdateBody(ctx, Actor{}, process.ID, dto.UpdateStageBodyRequest{Body: "<p>a</p>", Version: process.Version})
	require.NoError(t, err)
	_, err = svc.UpdateBody(ctx, Actor{}, process.ID, dto.UpdateStageBodyRequest{Body: "<p>b</p>", Version: process.Version})
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	repo.updateErr = fmt.Errorf("update bidding process: %w", repository.ErrVersionConflict)
	_, err = svc.UpdateBody(ctx, Actor{}, process.ID, dto.UpdateStageBodyRequest{Body: "<p>c</p>", Version: process.Version + 1})
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Equal(t, "<p>a</p>", repo.rows[process.ID].CurrentStage.Body)
}

func TestBiddingInitialStageLockedAfterApproval(t *testing.T) {
	svc, repo, _ := newBiddingFixture()
	ctx := context.Background()
	process := createBidding(t, svc)

	row := repo.rows[process.ID]
	row.Status = models.BiddingStatusApproved
	repo.rows[process.ID] = row

	_, err := svc.UpdateBody(ctx, Actor{}, process.ID, dto.UpdateStageBodyRequest{Body: "<p>x</p>", Version: row.Version})
	assert.True(t, errors.Is(err, appErrors.ErrStageLocked))

	view, err := svc.ViewStage(ctx, process.ID, 0)
	require.NoError(t, err)
	assert.True(t, view.ReadOnly)
	assert.True(t, view.Current)
}

func TestBiddingGetNotFound(t *testing.T) {
	svc, _, _ := newBiddingFixture()
	_, err := svc.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
