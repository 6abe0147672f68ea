package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	temporalworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

const (
	refreshTaskQueue    = "catalog-refresh-task-queue"
	refreshWorkflowName = "catalog.snapshot.refresh"
	refreshActivityName = "catalog.snapshot.fetch"
)

// RefreshInput carries parameters into the refresh workflow.
type RefreshInput struct {
	Force  bool   `json:"force"`
	Reason string `json:"reason"`
}

// RefreshResult captures the workflow output.
type RefreshResult struct {
	WorkflowID  string    `json:"workflow_id,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
	Items       int       `json:"items"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// RefreshOrchestrator abstracts how snapshot refreshes execute. Production
// deployments back it with a Temporal workflow runner; without a Temporal
// server the in-process runner does the same work directly.
type RefreshOrchestrator interface {
	RunRefresh(ctx context.Context, input RefreshInput) (RefreshResult, error)
}

// RefreshActivities hosts the activity implementation reusing the store.
type RefreshActivities struct {
	store  *Store
	logger *slog.Logger
}

func NewRefreshActivities(store *Store, logger *slog.Logger) *RefreshActivities {
	return &RefreshActivities{store: store, logger: logger}
}

// FetchSnapshotActivity reloads the snapshot and rebuilds the local index.
func (a *RefreshActivities) FetchSnapshotActivity(ctx context.Context, input RefreshInput) (RefreshResult, error) {
	started := time.Now().UTC()
	if err := a.store.LoadInitialData(ctx, input.Force); err != nil {
		a.logger.Error("activity snapshot refresh failed", "reason", input.Reason, "error", err)
		return RefreshResult{StartedAt: started}, err
	}
	state := a.store.GetState()
	a.logger.Info("activity snapshot refreshed", "reason", input.Reason, "total", state.Pagination.TotalItems)
	return RefreshResult{
		Items:       state.Pagination.TotalItems,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	}, nil
}

// RefreshSnapshotWorkflow runs the snapshot fetch with retries so transient
// catalog outages do not leave the index stale for a whole TTL window.
func RefreshSnapshotWorkflow(ctx workflow.Context, input RefreshInput) (RefreshResult, error) {
	logger := workflow.GetLogger(ctx)
	options := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    5,
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, options)

	logger.Info("snapshot refresh workflow started", "force", input.Force, "reason", input.Reason)
	var result RefreshResult
	if err := workflow.ExecuteActivity(ctx, refreshActivityName, input).Get(ctx, &result); err != nil {
		logger.Error("snapshot refresh activity failed", "error", err)
		return result, err
	}
	logger.Info("snapshot refresh workflow finished", "items", result.Items, "reason", input.Reason)
	return result, nil
}

// RegisterRefreshWorker wires the Temporal worker consuming the refresh queue.
func RegisterRefreshWorker(c client.Client, store *Store, logger *slog.Logger) temporalworker.Worker {
	w := temporalworker.New(c, refreshTaskQueue, temporalworker.Options{})
	w.RegisterWorkflowWithOptions(RefreshSnapshotWorkflow, workflow.RegisterOptions{Name: refreshWorkflowName})
	activities := NewRefreshActivities(store, logger.With("component", "refresh.activities"))
	w.RegisterActivityWithOptions(activities.FetchSnapshotActivity, activity.RegisterOptions{Name: refreshActivityName})
	return w
}

// TemporalRefresher starts refresh workflows through the Temporal client.
type TemporalRefresher struct {
	client client.Client
	logger *slog.Logger
}

func NewTemporalRefresher(c client.Client, logger *slog.Logger) *TemporalRefresher {
	return &TemporalRefresher{client: c, logger: logger.With("component", "refresh.orchestrator")}
}

func (o *TemporalRefresher) RunRefresh(ctx context.Context, input RefreshInput) (RefreshResult, error) {
	workflowID := fmt.Sprintf("refresh-%d", time.Now().UnixNano())
	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                refreshTaskQueue,
		WorkflowExecutionTimeout: 30 * time.Minute,
	}
	we, err := o.client.ExecuteWorkflow(ctx, options, RefreshSnapshotWorkflow, input)
	if err != nil {
		o.logger.Error("start refresh workflow failed", "error", err)
		return RefreshResult{}, err
	}
	var result RefreshResult
	if err := we.Get(ctx, &result); err != nil {
		o.logger.Error("wait refresh workflow failed", "workflow_id", we.GetID(), "error", err)
		result.WorkflowID = we.GetID()
		result.RunID = we.GetRunID()
		return result, err
	}
	result.WorkflowID = we.GetID()
	result.RunID = we.GetRunID()
	o.logger.Info("refresh workflow completed", "workflow_id", result.WorkflowID, "run_id", result.RunID, "items", result.Items)
	return result, nil
}

// LocalRefresher executes the refresh inline, for deployments without a
// Temporal server.
type LocalRefresher struct {
	activities *RefreshActivities
}

func NewLocalRefresher(store *Store, logger *slog.Logger) *LocalRefresher {
	return &LocalRefresher{activities: NewRefreshActivities(store, logger.With("component", "refresh.local"))}
}

func (l *LocalRefresher) RunRefresh(ctx context.Context, input RefreshInput) (RefreshResult, error) {
	return l.activities.FetchSnapshotActivity(ctx, input)
}

// StartAutoRefresh begins a ticker-driven loop that re-fetches the snapshot
// every interval, keeping Mode A serving fresh data past the TTL.
func StartAutoRefresh(ctx context.Context, orchestrator RefreshOrchestrator, interval time.Duration, logger *slog.Logger) {
	go func() {
		logger.Info("autorefresh loop started", "interval", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("autorefresh loop stopped", "reason", ctx.Err())
				return
			case <-ticker.C:
				result, err := orchestrator.RunRefresh(ctx, RefreshInput{Force: true, Reason: "autorefresh-interval"})
				if err != nil {
					logger.Error("autorefresh failed", "error", err)
					continue
				}
				logger.Info("autorefresh completed", "items", result.Items, "workflow_id", result.WorkflowID)
			}
		}
	}()
}

// RefreshTaskQueue exposes the queue name for metrics and tests.
func RefreshTaskQueue() string {
	return refreshTaskQueue
}
