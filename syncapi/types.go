package syncapi

import (
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/models"
	"bitbucket.org/mmdatafocus/mosys_sync/syncer"
)

// TriggerResponse mirrors the JSON the CLI binaries print.
type TriggerResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Deleted  int    `json:"deleted"`

	Result *syncer.RunResult `json:"result,omitempty"`
}

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// NewTriggerResponse converts a run result to the response shape.
func NewTriggerResponse(res syncer.RunResult) TriggerResponse {
	out := TriggerResponse{
		Status:   StatusCompleted,
		Message:  res.Message,
		Inserted: res.Inserted,
		Updated:  res.Updated,
		Deleted:  res.Deleted,
		Result:   &res,
	}
	if res.Failed() {
		out.Status = StatusFailed
	}
	if out.Message == "" && !res.Failed() {
		out.Message = "sync completed"
	}
	return out
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	RunId         string     `json:"runId"`
	Status        string     `json:"status"`
	Inserted      int        `json:"inserted"`
	Updated       int        `json:"updated"`
	Deleted       int        `json:"deleted"`
	Discrepancies int        `json:"discrepancies"`
	Message       string     `json:"message,omitempty"`
	WindowStart   *time.Time `json:"windowStart"`
	WindowEnd     *time.Time `json:"windowEnd"`
	StartedAt     time.Time  `json:"startedAt"`
	DurationMs    int64      `json:"durationMs"`
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		RunId:         run.RunId,
		Status:        run.Status,
		Inserted:      run.Inserted,
		Updated:       run.Updated,
		Deleted:       run.Deleted,
		Discrepancies: run.Discrepancies,
		Message:       run.Message,
		WindowStart:   run.WindowStart,
		WindowEnd:     run.WindowEnd,
		StartedAt:     run.StartedAt,
		DurationMs:    run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
	}
}

// resultFromRun rebuilds a RunResult from its history row.
func resultFromRun(run models.SyncRun) syncer.RunResult {
	return syncer.RunResult{
		RunID:         run.RunId,
		Family:        run.Family,
		Plant:         run.Plant,
		Status:        run.Status,
		Inserted:      run.Inserted,
		Updated:       run.Updated,
		Deleted:       run.Deleted,
		Message:       run.Message,
		WindowStart:   run.WindowStart,
		WindowEnd:     run.WindowEnd,
		Discrepancies: run.Discrepancies,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
	}
}

// PubSubPushEnvelope is the body Pub/Sub push subscriptions POST.
type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// TriggerPayload is the message a scheduler publishes to start a run.
type TriggerPayload struct {
	Family string `json:"family"`
	Plant  string `json:"plant"`
}
