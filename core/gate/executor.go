package gate

import (
	"context"

	"github.com/filegate/filegate/core/infra/logging"
)

// Executor carries out block decisions through host primitives. Enforcement
// is best-effort: every host error is logged and swallowed, and all
// operations are idempotent at the host boundary (cancelling or erasing an
// already-gone download is a tolerated no-op).
type Executor struct {
	host    Host
	metrics Metrics
}

func NewExecutor(host Host, metrics Metrics) *Executor {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Executor{host: host, metrics: metrics}
}

// Block stops a download and erases it from host history. Interrupted
// downloads are already stopped and need nothing; completed downloads have
// their file removed; in-progress downloads are cancelled first.
func (x *Executor) Block(ctx context.Context, item *DownloadItem) {
	if item == nil {
		return
	}
	switch item.State {
	case StateInterrupted:
		logging.Info("executor", "download already interrupted, nothing to block", "download_id", item.ID)
		return
	case StateComplete:
		if err := x.host.RemoveFile(ctx, item.ID); err != nil {
			x.hostErr("remove_file", item.ID, err)
		}
	default:
		if err := x.host.Cancel(ctx, item.ID); err != nil {
			x.hostErr("cancel", item.ID, err)
		}
	}
	if err := x.host.Erase(ctx, item.ID); err != nil {
		x.hostErr("erase", item.ID, err)
	}
	logging.Info("executor", "download blocked", "download_id", item.ID, "state", item.State, "filename", item.Filename)
}

func (x *Executor) hostErr(op string, id int64, err error) {
	x.metrics.IncHostErrors(op)
	logging.Error("executor", "host primitive failed", "op", op, "download_id", id, "error", err)
}
