package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poppopjmp/spiderfoot-sub001/internal/export"
	"github.com/poppopjmp/spiderfoot-sub001/internal/model"
	"github.com/poppopjmp/spiderfoot-sub001/internal/provider"
)

// outcome is the result of applying one action to one resource.
type outcome struct {
	ok         bool
	freedBytes int64
	runErr     *model.RunError
}

// ExecResult carries the per-item outcomes of one executor pass. One
// resource's failure never aborts the pass; every matched resource is
// attempted unless the context is cancelled first.
type ExecResult struct {
	Succeeded  int
	Failed     int
	SpaceFreed int64
	Errors     []model.RunError
	// Interrupted is set when cancellation stopped the pass before every
	// resource was attempted. Completed actions are not rolled back.
	Interrupted bool
}

// Executor applies a rule's action to matched resources, one at a time,
// with per-resource isolation. The action set is closed: each action tag
// has exactly one handler.
type Executor struct {
	provider provider.Provider
	sink     export.Sink
	logger   *slog.Logger
}

func NewExecutor(p provider.Provider, sink export.Sink) *Executor {
	return &Executor{
		provider: p,
		sink:     sink,
		logger:   slog.Default().With("component", "retention.executor"),
	}
}

// Execute runs the rule's action over every matched resource. pending maps
// resource ids to export checksums from earlier runs whose delete is still
// outstanding; those resources skip re-export and only retry the delete.
func (e *Executor) Execute(ctx context.Context, rule model.RetentionRule, matched []model.ResourceDescriptor, pending map[string]string) ExecResult {
	result := ExecResult{Errors: make([]model.RunError, 0)}

	for _, res := range matched {
		// Cooperative cancellation between resources.
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}

		var out outcome
		switch rule.Action {
		case model.ActionDelete:
			out = e.executeDelete(ctx, rule, res)
		case model.ActionArchive:
			out = e.executeArchive(ctx, rule, res)
		case model.ActionExportThenDelete:
			out = e.executeExportThenDelete(ctx, rule, res, pending[res.ResourceID])
		default:
			out = failure(res.ResourceID, model.ErrCodeDeleteFailed, fmt.Sprintf("unknown action %q", rule.Action))
		}

		if out.ok {
			result.Succeeded++
			result.SpaceFreed += out.freedBytes
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, *out.runErr)
		e.logger.Warn("resource action failed",
			"rule_id", rule.ID,
			"resource_id", res.ResourceID,
			"action", rule.Action,
			"code", out.runErr.Code,
			"reason", out.runErr.Reason,
		)
	}

	return result
}

func failure(resourceID string, code string, reason string) outcome {
	return outcome{runErr: &model.RunError{ResourceID: resourceID, Code: code, Reason: reason}}
}

// executeDelete removes the resource irreversibly. A resource that is
// already gone counts as success: the delete is a safe no-op on retry.
func (e *Executor) executeDelete(ctx context.Context, rule model.RetentionRule, res model.ResourceDescriptor) outcome {
	err := e.provider.Delete(ctx, rule.ResourceType, res.ResourceID)
	if errors.Is(err, model.ErrResourceNotFound) {
		return outcome{ok: true}
	}
	if err != nil {
		return failure(res.ResourceID, model.ErrCodeDeleteFailed, err.Error())
	}
	return outcome{ok: true, freedBytes: res.SizeBytes}
}

// executeArchive copies the resource to cold storage keyed by
// (rule_id, resource_id), then marks it archived. The key is stable, so a
// retried archive overwrites its previous object.
func (e *Executor) executeArchive(ctx context.Context, rule model.RetentionRule, res model.ResourceDescriptor) outcome {
	payload, err := e.provider.Content(ctx, rule.ResourceType, res.ResourceID)
	if err != nil {
		return failure(res.ResourceID, model.ErrCodeContentFetchFailed, err.Error())
	}

	key := export.ArchiveKey(rule.ID, res.ResourceID)
	if _, err := e.sink.Export(ctx, key, payload); err != nil {
		return failure(res.ResourceID, model.ErrCodeArchiveFailed, err.Error())
	}

	if err := e.provider.SetStatus(ctx, rule.ResourceType, res.ResourceID, provider.StatusArchived); err != nil {
		return failure(res.ResourceID, model.ErrCodeStatusUpdateFailed, err.Error())
	}

	return outcome{ok: true}
}

// executeExportThenDelete is two-phase: export to a content-addressed key,
// verify the checksum, and only then delete. Delete is never attempted for
// a resource without a verified export. When a prior run already exported
// the resource (pendingChecksum non-empty) the export phase is skipped and
// only the delete retried, so a resource is never exported twice.
func (e *Executor) executeExportThenDelete(ctx context.Context, rule model.RetentionRule, res model.ResourceDescriptor, pendingChecksum string) outcome {
	key := export.ExportKey(rule.ResourceType, res.ResourceID)
	checksum := pendingChecksum

	if checksum != "" {
		// Prior export with delete still pending. Re-verify instead of
		// re-uploading; fall back to a fresh export if the object vanished.
		if err := e.sink.Verify(ctx, key, checksum); err != nil {
			checksum = ""
		}
	}

	if checksum == "" {
		payload, err := e.provider.Content(ctx, rule.ResourceType, res.ResourceID)
		if err != nil {
			return failure(res.ResourceID, model.ErrCodeContentFetchFailed, err.Error())
		}

		checksum, err = e.sink.Export(ctx, key, payload)
		if err != nil {
			return failure(res.ResourceID, model.ErrCodeExportFailed, err.Error())
		}

		if err := e.sink.Verify(ctx, key, checksum); err != nil {
			return failure(res.ResourceID, model.ErrCodeVerifyFailed, err.Error())
		}
	}

	err := e.provider.Delete(ctx, rule.ResourceType, res.ResourceID)
	if errors.Is(err, model.ErrResourceNotFound) {
		return outcome{ok: true}
	}
	if err != nil {
		// Export is confirmed durable; record the distinct pending state so
		// the next run retries only the delete.
		return outcome{runErr: &model.RunError{
			ResourceID: res.ResourceID,
			Code:       model.ErrCodeExportedDeletePending,
			Reason:     err.Error(),
			Checksum:   checksum,
		}}
	}

	return outcome{ok: true, freedBytes: res.SizeBytes}
}
