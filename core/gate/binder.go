package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/filegate/filegate/core/infra/logging"
)

// Binder links host download identifiers to transfer records. The fast path
// is the stored bidirectional index; when it misses, a scan over the
// insertion-ordered transfer index matches records by source URL. If several
// pending transfers share a source URL the first inserted wins.
type Binder struct {
	store   Store
	metrics Metrics
}

func NewBinder(store Store, metrics Metrics) *Binder {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Binder{store: store, metrics: metrics}
}

// Resolve returns the transfer record bound to the item, binding
// heuristically when no direct mapping exists yet. A nil record with nil
// error means no metadata has been submitted for this download; callers
// retry on later events.
func (b *Binder) Resolve(ctx context.Context, item *DownloadItem) (*TransferRecord, error) {
	if item == nil {
		return nil, errors.New("nil download item")
	}
	rec, err := b.Lookup(ctx, item.ID)
	if err == nil && rec != nil {
		b.metrics.IncBindings("direct")
		return rec, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		logging.Error("binder", "direct lookup failed", "download_id", item.ID, "error", err)
	}
	return b.heuristicBind(ctx, item)
}

// Lookup follows DownloadID_<id> -> guid -> record. ErrNotFound when either
// hop is missing.
func (b *Binder) Lookup(ctx context.Context, downloadID int64) (*TransferRecord, error) {
	raw, err := b.store.Get(ctx, bindingKey(downloadID))
	if err != nil {
		return nil, err
	}
	guid := strings.TrimSpace(string(raw))
	if guid == "" {
		return nil, ErrNotFound
	}
	return b.loadRecord(ctx, guid)
}

// BoundDownloadID resolves the download id bound to a guid, if any.
func (b *Binder) BoundDownloadID(ctx context.Context, guid string) (int64, bool) {
	raw, err := b.store.Get(ctx, reverseKey(guid))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.Error("binder", "reverse lookup failed", "guid", guid, "error", err)
		}
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		logging.Error("binder", "malformed reverse binding", "guid", guid, "value", string(raw))
		return 0, false
	}
	return id, true
}

func (b *Binder) heuristicBind(ctx context.Context, item *DownloadItem) (*TransferRecord, error) {
	target := item.ResolvedURL()
	if target == "" {
		b.metrics.IncBindings("miss")
		return nil, nil
	}

	guids, err := b.store.IndexScan(ctx)
	if err != nil {
		logging.Error("binder", "index scan failed", "error", err)
		b.metrics.IncBindings("miss")
		return nil, nil
	}

	for _, guid := range guids {
		rec, err := b.loadRecord(ctx, guid)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				logging.Error("binder", "record load failed during scan", "guid", guid, "error", err)
			}
			continue
		}
		if rec.SourceURL != target {
			continue
		}
		if err := b.bind(ctx, rec, item.ID); err != nil {
			logging.Error("binder", "bind failed", "guid", guid, "download_id", item.ID, "error", err)
			b.metrics.IncBindings("miss")
			return nil, nil
		}
		b.metrics.IncBindings("heuristic")
		logging.Info("binder", "download bound", "guid", guid, "download_id", item.ID, "url", target)
		return rec, nil
	}

	b.metrics.IncBindings("miss")
	return nil, nil
}

func (b *Binder) bind(ctx context.Context, rec *TransferRecord, downloadID int64) error {
	if err := b.store.Set(ctx, bindingKey(downloadID), []byte(rec.GUID)); err != nil {
		return fmt.Errorf("write download binding: %w", err)
	}
	if err := b.store.Set(ctx, reverseKey(rec.GUID), []byte(strconv.FormatInt(downloadID, 10))); err != nil {
		return fmt.Errorf("write reverse binding: %w", err)
	}
	rec.DownloadID = &downloadID
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := b.store.Set(ctx, recordKey(rec.GUID), data); err != nil {
		return fmt.Errorf("persist bound record: %w", err)
	}
	return nil
}

func (b *Binder) loadRecord(ctx context.Context, guid string) (*TransferRecord, error) {
	data, err := b.store.Get(ctx, recordKey(guid))
	if err != nil {
		return nil, err
	}
	var rec TransferRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", guid, err)
	}
	return &rec, nil
}
