package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BiddingStatus captures the overall lifecycle of a bidding process.
type BiddingStatus string

const (
	BiddingStatusDraft      BiddingStatus = "DRAFT"
	BiddingStatusInProgress BiddingStatus = "IN_PROGRESS"
	BiddingStatusApproved   BiddingStatus = "APPROVED"
	BiddingStatusCompleted  BiddingStatus = "COMPLETED"
	BiddingStatusCancelled  BiddingStatus = "CANCELLED"
)

// LocksInitialStage reports whether the originating stage is frozen by the process status.
func (s BiddingStatus) LocksInitialStage() bool {
	return s == BiddingStatusApproved || s == BiddingStatusCompleted
}

// Signature identifies one signer of a stage.
type Signature struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name" validate:"required"`
	Role   string `json:"role"`
	Sector string `json:"sector"`
}

// Stage is one phase of a bidding process with its own content and sign-off.
type Stage struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Body            string      `json:"body"`
	SignatureName   string      `json:"signatureName,omitempty"`
	SignatureRole   string      `json:"signatureRole,omitempty"`
	SignatureSector string      `json:"signatureSector,omitempty"`
	Signatures      []Signature `json:"signatures"`
}

// Clone returns a deep copy of the stage.
func (s Stage) Clone() Stage {
	out := s
	out.Signatures = append([]Signature(nil), s.Signatures...)
	return out
}

// Stages is the JSONB-backed list of finalized stages.
type Stages []Stage

// Value implements driver.Valuer.
func (s Stages) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *Stages) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// Value implements driver.Valuer.
func (s Stage) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *Stage) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// BiddingProcess is a multi-stage tender process (licitação).
type BiddingProcess struct {
	ID                string        `db:"id" json:"id"`
	Title             string        `db:"title" json:"title"`
	Protocol          string        `db:"protocol" json:"protocol"`
	SectorID          string        `db:"sector_id" json:"sectorId"`
	Status            BiddingStatus `db:"status" json:"status"`
	HistoricStages    Stages        `db:"historic_stages" json:"historicStages"`
	CurrentStage      Stage         `db:"current_stage" json:"currentStage"`
	CurrentStageIndex int           `db:"current_stage_index" json:"currentStageIndex"`
	Version           int           `db:"version" json:"version"`
	CreatedBy         string        `db:"created_by" json:"createdBy"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updatedAt"`
}

// StageAt returns the stage stored at index i (historic or current).
func (p *BiddingProcess) StageAt(i int) (Stage, bool) {
	switch {
	case i < 0 || i > p.CurrentStageIndex:
		return Stage{}, false
	case i == p.CurrentStageIndex:
		return p.CurrentStage, true
	case i < len(p.HistoricStages):
		return p.HistoricStages[i], true
	default:
		return Stage{}, false
	}
}

// BiddingFilter constrains listing queries.
type BiddingFilter struct {
	SectorID string
	Status   BiddingStatus
	Limit    int
	Offset   int
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}
