package dto

import "github.com/noah-isme/gestao-docs-api/internal/models"

// CreateBiddingRequest opens a new bidding process.
type CreateBiddingRequest struct {
	Title        string `json:"title" validate:"required,max=255"`
	SectorID     string `json:"sectorId"`
	InitialTitle string `json:"initialStageTitle"`
	InitialBody  string `json:"initialStageBody"`
}

// UpdateStageBodyRequest writes the editable stage body.
type UpdateStageBodyRequest struct {
	Body    string `json:"body"`
	Version int    `json:"version" validate:"required,min=1"`
}

// AddSignatureRequest appends a signer to the current stage.
type AddSignatureRequest struct {
	Signature models.Signature `json:"signature" validate:"required"`
	Version   int              `json:"version" validate:"required,min=1"`
}

// AdvanceStageRequest finalizes the current stage and opens the next one.
type AdvanceStageRequest struct {
	NextTitle string `json:"nextTitle" validate:"required,max=255"`
	Version   int    `json:"version" validate:"required,min=1"`
}

// UpdateBiddingStatusRequest changes the overall process status.
type UpdateBiddingStatusRequest struct {
	Status  models.BiddingStatus `json:"status" validate:"required,oneof=DRAFT IN_PROGRESS APPROVED COMPLETED CANCELLED"`
	Version int                  `json:"version" validate:"required,min=1"`
}

// StageView is a stage as seen through the viewer, with its editability.
type StageView struct {
	Index    int          `json:"index"`
	Stage    models.Stage `json:"stage"`
	ReadOnly bool         `json:"readOnly"`
	Current  bool         `json:"current"`
}

// ExportResponse points at a rendered export.
type ExportResponse struct {
	URL       string `json:"url"`
	Cached    bool   `json:"cached"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}
