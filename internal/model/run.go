package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// KV is a flat string map persisted as a JSON text column. It carries job
// parameters and outputs through the store without a schema per key.
type KV map[string]string

// Value implements driver.Valuer.
func (kv KV) Value() (driver.Value, error) {
	if kv == nil {
		return "{}", nil
	}
	b, err := json.Marshal(kv)
	if err != nil {
		return nil, fmt.Errorf("marshal kv: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (kv *KV) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*kv = nil
		return nil
	case []byte:
		return json.Unmarshal(v, kv)
	case string:
		return json.Unmarshal([]byte(v), kv)
	default:
		return fmt.Errorf("cannot scan %T into model.KV", src)
	}
}

// Run is one instantiation of a workflow's whole job graph for a triggering
// event. It is created pending, transitions to running when its concurrency
// group admits it, and ends in exactly one terminal status.
type Run struct {
	ID               int64      `json:"id" db:"id"`
	WorkflowName     string     `json:"workflow_name" db:"workflow_name"`
	RunNumber        int64      `json:"run_number" db:"run_number"`
	Event            string     `json:"event" db:"event"`
	Ref              string     `json:"ref" db:"ref"`
	SHA              string     `json:"sha" db:"sha"`
	ConcurrencyGroup string     `json:"concurrency_group" db:"concurrency_group"`
	Status           Status     `json:"status" db:"status"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// JobRun is the execution record of a single job within a run.
type JobRun struct {
	ID         int64      `json:"id" db:"id"`
	RunID      int64      `json:"run_id" db:"run_id"`
	Name       string     `json:"name" db:"name"`
	Status     Status     `json:"status" db:"status"`
	UsesRef    string     `json:"uses_ref,omitempty" db:"uses_ref"`
	Params     KV         `json:"params,omitempty" db:"params"`
	Outputs    KV         `json:"outputs,omitempty" db:"outputs"`
	Error      string     `json:"error,omitempty" db:"error_msg"`
	Attempts   int        `json:"attempts" db:"attempts"`
	StartedAt  *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
