package storage

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentflow/agent"
	"github.com/hupe1980/agentflow/flow"
	"github.com/hupe1980/agentflow/plan"
)

// RunRecord is one persisted flow execution.
type RunRecord struct {
	// RunID is the flow report id.
	RunID      string `gorm:"primaryKey;size:64"`
	Flow       string `gorm:"size:32;not null;index"`
	Input      string `gorm:"type:text;not null"`
	Output     string `gorm:"type:text"`
	Notice     string `gorm:"type:text"`
	Partial    bool   `gorm:"not null;default:false"`
	Cancelled  bool   `gorm:"not null;default:false"`
	Replans    int    `gorm:"not null;default:0"`
	ModelCalls int    `gorm:"not null;default:0"`
	Error      string `gorm:"type:text"`
	// PlanYAML holds the final plan snapshot of a planning run.
	PlanYAML   string    `gorm:"type:text"`
	StartedAt  time.Time `gorm:"not null;index"`
	FinishedAt time.Time `gorm:"not null"`
	DurationMS int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`

	Steps []StepRecord `gorm:"foreignKey:RunID;references:RunID;constraint:OnDelete:CASCADE"`
}

// StepRecord is one executed plan step of a run.
type StepRecord struct {
	ID           uint64 `gorm:"primaryKey"`
	RunID        string `gorm:"size:64;not null;index:idx_step_records_run_seq,priority:1"`
	Seq          int    `gorm:"not null;index:idx_step_records_run_seq,priority:2"`
	StepIndex    int    `gorm:"not null"`
	Description  string `gorm:"type:text;not null"`
	Executor     string `gorm:"size:64"`
	Status       string `gorm:"size:16;not null;index"`
	FinishReason string `gorm:"size:32"`
	AgentSteps   int    `gorm:"not null"`
	Output       string `gorm:"type:text"`
	Error        string `gorm:"type:text"`
	DurationMS   int64  `gorm:"not null"`
}

// Status summarizes a run as completed, partial, cancelled or failed.
func (r *RunRecord) Status() string {
	switch {
	case r.Error != "":
		return "failed"
	case r.Cancelled:
		return "cancelled"
	case r.Partial:
		return "partial"
	default:
		return "completed"
	}
}

func newRunRecord(r *flow.Report) (*RunRecord, error) {
	rec := &RunRecord{
		RunID:      r.RunID,
		Flow:       string(r.Flow),
		Input:      r.Input,
		Output:     r.Output,
		Notice:     r.Notice,
		Partial:    r.Partial,
		Cancelled:  r.Cancelled,
		Replans:    r.Replans,
		ModelCalls: r.ModelCalls,
		Error:      r.Err,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		DurationMS: r.Duration().Milliseconds(),
	}
	if r.Plan != nil {
		b, err := r.Plan.YAML()
		if err != nil {
			return nil, fmt.Errorf("encode plan: %w", err)
		}
		rec.PlanYAML = string(b)
	}
	for i, s := range r.Steps {
		rec.Steps = append(rec.Steps, StepRecord{
			RunID:        r.RunID,
			Seq:          i,
			StepIndex:    s.Index,
			Description:  s.Description,
			Executor:     s.Executor,
			Status:       string(s.Status),
			FinishReason: string(s.FinishReason),
			AgentSteps:   s.AgentSteps,
			Output:       s.Output,
			Error:        s.Err,
			DurationMS:   s.Duration.Milliseconds(),
		})
	}
	return rec, nil
}

// Report converts the record back into a flow report.
func (r *RunRecord) Report() (*flow.Report, error) {
	rep := &flow.Report{
		RunID:      r.RunID,
		Flow:       flow.Type(r.Flow),
		Input:      r.Input,
		Output:     r.Output,
		Notice:     r.Notice,
		Replans:    r.Replans,
		Partial:    r.Partial,
		Cancelled:  r.Cancelled,
		ModelCalls: r.ModelCalls,
		Err:        r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.PlanYAML != "" {
		var snap plan.Snapshot
		if err := yaml.Unmarshal([]byte(r.PlanYAML), &snap); err != nil {
			return nil, fmt.Errorf("decode plan of run %s: %w", r.RunID, err)
		}
		rep.Plan = &snap
	}
	for _, s := range r.Steps {
		rep.Steps = append(rep.Steps, flow.StepReport{
			Index:        s.StepIndex,
			Description:  s.Description,
			Executor:     s.Executor,
			Status:       plan.Status(s.Status),
			FinishReason: agent.FinishReason(s.FinishReason),
			AgentSteps:   s.AgentSteps,
			Output:       s.Output,
			Err:          s.Error,
			Duration:     time.Duration(s.DurationMS) * time.Millisecond,
		})
	}
	return rep, nil
}
