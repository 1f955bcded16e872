// Package domain holds the allocation engine's outcome types and the run
// ledger model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type OutcomeStatus string

const (
	OutcomeWritten OutcomeStatus = "written"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonMissingAggregateTotal Reason = "missing_aggregate_total"
	ReasonZeroDenominator       Reason = "zero_denominator"
	ReasonUpsertConflict        Reason = "upsert_conflict"
	ReasonStoreError            Reason = "store_error"
)

// DetailUnmappedCategory marks a level-2 code the taxonomy bridge has no
// coarse label for.
const DetailUnmappedCategory = "unmapped_category"

// Outcome is the result of allocating one relation.
type Outcome struct {
	RelationID   snowflake.ID  `json:"relation_id"`
	SiteID       snowflake.ID  `json:"site_id"`
	CategoryCode string        `json:"category_code"`
	Status       OutcomeStatus `json:"status"`
	Reason       Reason        `json:"reason,omitempty"`
	Detail       string        `json:"detail,omitempty"`
	Ratio        *float64      `json:"ratio,omitempty"`
	Amount       *float64      `json:"amount,omitempty"`
	RecordID     snowflake.ID  `json:"record_id,omitempty"`
}

// Period is an inclusive allocation window.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (p Period) Year() int { return p.Start.Year() }

type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunNoRelations RunStatus = "no_relations"
	RunFailed      RunStatus = "failed"
)

// Report summarizes one allocation pass.
type Report struct {
	RunID      string    `json:"run_id"`
	Year       int       `json:"year"`
	Period     Period    `json:"period"`
	Status     RunStatus `json:"status"`
	Relations  int       `json:"relations"`
	Written    int       `json:"written"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r *Report) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case OutcomeWritten:
		r.Written++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
}

// ReasonCounts tallies skipped and failed outcomes by reason.
func (r *Report) ReasonCounts() map[string]int {
	out := map[string]int{}
	for _, o := range r.Outcomes {
		if o.Reason == ReasonNone {
			continue
		}
		key := string(o.Reason)
		if o.Detail != "" {
			key += ":" + o.Detail
		}
		out[key]++
	}
	return out
}

// Run is the ledger row of one allocation pass.
type Run struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	RunID       string         `gorm:"type:text;not null;uniqueIndex" json:"run_id"`
	Year        int            `gorm:"not null;index" json:"year"`
	PeriodStart time.Time      `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time      `gorm:"not null" json:"period_end"`
	Status      RunStatus      `gorm:"type:text;not null" json:"status"`
	Relations   int            `gorm:"not null;default:0" json:"relations"`
	Written     int            `gorm:"not null;default:0" json:"written"`
	Skipped     int            `gorm:"not null;default:0" json:"skipped"`
	Failed      int            `gorm:"not null;default:0" json:"failed"`
	Summary     datatypes.JSON `json:"summary,omitempty"`
	Error       string         `gorm:"type:text" json:"error,omitempty"`
	StartedAt   time.Time      `gorm:"not null" json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Run) TableName() string { return "allocation_runs" }
