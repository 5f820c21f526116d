package service

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/noah-isme/gestao-docs-api/internal/models"
	appErrors "github.com/noah-isme/gestao-docs-api/pkg/errors"
)

// RichTextSurface is the single editing surface bound to the viewed stage.
type RichTextSurface interface {
	Content() string
	SetContent(html string)
}

// BufferSurface is a RichTextSurface held in memory.
type BufferSurface struct {
	mu      sync.Mutex
	content string
	loads   int
}

// Content returns the surface content.
func (b *BufferSurface) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

// SetContent replaces the surface content.
func (b *BufferSurface) SetContent(html string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = html
	b.loads++
}

// Type appends text as if typed into the surface.
func (b *BufferSurface) Type(text string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content += text
	return b.content
}

// Loads counts SetContent calls.
func (b *BufferSurface) Loads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads
}

// StageEditor drives the stages of one bidding process. Historic stages are
// read-only; only the current stage accepts edits, and only while it is viewed.
//
// Stage content is pushed into the surface only when the viewed index changes
// (or on mount into an empty surface). Edits flow from the surface into the
// current stage on every call.
type StageEditor struct {
	mu              sync.Mutex
	process         models.BiddingProcess
	viewing         int
	lastSyncedIndex int
	surface         RichTextSurface
}

// NewStageEditor mounts the process on surface, viewing the current stage.
func NewStageEditor(process models.BiddingProcess, surface RichTextSurface) *StageEditor {
	if surface == nil {
		surface = &BufferSurface{}
	}
	e := &StageEditor{
		process:         cloneProcess(process),
		viewing:         process.CurrentStageIndex,
		lastSyncedIndex: -1,
		surface:         surface,
	}
	if surface.Content() == "" {
		e.syncSurface()
	} else {
		e.lastSyncedIndex = e.viewing
	}
	return e
}

// Process returns a copy of the edited process.
func (e *StageEditor) Process() models.BiddingProcess {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneProcess(e.process)
}

// ViewingIndex returns the stage bound to the surface.
func (e *StageEditor) ViewingIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewing
}

// CanEdit reports whether the viewed stage accepts edits.
func (e *StageEditor) CanEdit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editableLocked() == nil
}

// ViewStage binds stage i to the surface without touching any stage content.
func (e *StageEditor) ViewStage(i int) (models.Stage, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stage, ok := e.process.StageAt(i)
	if !ok {
		return models.Stage{}, false, appErrors.Clone(appErrors.ErrStageNotReached, fmt.Sprintf("stage %d has not been reached", i))
	}
	e.viewing = i
	e.syncSurface()
	readOnly := e.editableLocked() != nil
	return stage.Clone(), readOnly, nil
}

// EditCurrentStageBody writes the surface content into the current stage.
func (e *StageEditor) EditCurrentStageBody(body string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return err
	}
	e.process.CurrentStage.Body = body
	return nil
}

// AppendSignatureTag inserts an inline signer tag into the current stage body.
// The initial stage takes a single structured signer instead.
func (e *StageEditor) AppendSignatureTag(sig models.Signature) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return err
	}
	if e.process.CurrentStageIndex == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "the initial stage takes a single signer")
	}
	if strings.TrimSpace(sig.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "signature name is required")
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	e.surface.SetContent(e.surface.Content() + SignatureTag(sig))
	e.process.CurrentStage.Body = e.surface.Content()
	e.process.CurrentStage.Signatures = append(e.process.CurrentStage.Signatures, sig)
	return nil
}

// SetInitialSigner records the single signer of the initial stage.
func (e *StageEditor) SetInitialSigner(sig models.Signature) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return err
	}
	if e.process.CurrentStageIndex != 0 {
		return appErrors.Clone(appErrors.ErrValidation, "only the initial stage has a structured signer")
	}
	if strings.TrimSpace(sig.Name) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "signature name is required")
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	stage := &e.process.CurrentStage
	stage.SignatureName = sig.Name
	stage.SignatureRole = sig.Role
	stage.SignatureSector = sig.Sector
	stage.Signatures = []models.Signature{sig}
	return nil
}

// Advance freezes the current stage into the history and opens a new one,
// moving the view along with it.
func (e *StageEditor) Advance(nextTitle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.viewing != e.process.CurrentStageIndex {
		return appErrors.Clone(appErrors.ErrStageLocked, "only the current stage can be advanced")
	}
	switch e.process.Status {
	case models.BiddingStatusCompleted, models.BiddingStatusCancelled:
		return appErrors.Clone(appErrors.ErrStageLocked, "the process is closed")
	}
	if strings.TrimSpace(nextTitle) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "the next stage needs a title")
	}
	current := e.process.CurrentStage
	if strings.TrimSpace(current.Body) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "the current stage has no content")
	}
	if e.process.CurrentStageIndex == 0 && current.SignatureName == "" {
		return appErrors.Clone(appErrors.ErrValidation, "the initial stage must be signed before advancing")
	}

	history := make(models.Stages, 0, len(e.process.HistoricStages)+1)
	history = append(history, e.process.HistoricStages...)
	e.process.HistoricStages = append(history, current.Clone())
	e.process.CurrentStageIndex = len(e.process.HistoricStages)
	e.process.CurrentStage = models.Stage{ID: uuid.NewString(), Title: nextTitle, Signatures: []models.Signature{}}
	e.viewing = e.process.CurrentStageIndex
	e.syncSurface()
	return nil
}

// SetStatus applies the process status, which may lock the initial stage.
func (e *StageEditor) SetStatus(status models.BiddingStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.process.Status = status
}

func (e *StageEditor) editableLocked() error {
	if e.viewing != e.process.CurrentStageIndex {
		return appErrors.Clone(appErrors.ErrStageLocked, fmt.Sprintf("stage %d is historic and read-only", e.viewing))
	}
	switch {
	case e.viewing == 0 && e.process.Status.LocksInitialStage():
		return appErrors.Clone(appErrors.ErrStageLocked, "the initial stage is locked by the process status")
	case e.process.Status == models.BiddingStatusCompleted || e.process.Status == models.BiddingStatusCancelled:
		return appErrors.Clone(appErrors.ErrStageLocked, "the process is closed")
	}
	return nil
}

func (e *StageEditor) syncSurface() {
	if e.lastSyncedIndex == e.viewing {
		return
	}
	stage, _ := e.process.StageAt(e.viewing)
	e.surface.SetContent(stage.Body)
	e.lastSyncedIndex = e.viewing
}

// SignatureTag renders the inline, non-editable tag of a signer.
func SignatureTag(sig models.Signature) string {
	parts := []string{html.EscapeString(sig.Name)}
	if sig.Role != "" {
		parts = append(parts, html.EscapeString(sig.Role))
	}
	if sig.Sector != "" {
		parts = append(parts, html.EscapeString(sig.Sector))
	}
	return fmt.Sprintf(`<span class="signature-tag" contenteditable="false" data-signature-id="%s">%s</span>`,
		html.EscapeString(sig.ID), strings.Join(parts, "<br>"))
}

func cloneProcess(p models.BiddingProcess) models.BiddingProcess {
	out := p
	out.HistoricStages = make(models.Stages, len(p.HistoricStages))
	for i, s := range p.HistoricStages {
		out.HistoricStages[i] = s.Clone()
	}
	out.CurrentStage = p.CurrentStage.Clone()
	return out
}
