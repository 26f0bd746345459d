package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/filegate/filegate/core/infra/logging"
)

const findingsField = "findings"

// Merger reconciles incoming metadata fragments with the stored transfer
// record for the same guid. Field merges are monotonic: a final hash is never
// reverted to the pending sentinel and inspection data never reverts to nil.
type Merger struct {
	store   Store
	policy  PolicySource
	metrics Metrics
}

func NewMerger(store Store, policy PolicySource, metrics Metrics) *Merger {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Merger{store: store, policy: policy, metrics: metrics}
}

// Apply merges one fragment and persists the result. The returned record is
// the merged view. Fragments without a guid are rejected.
func (m *Merger) Apply(ctx context.Context, frag MetadataFragment) (*TransferRecord, error) {
	if frag.GUID == "" {
		m.metrics.IncFragments("dropped")
		return nil, errors.New("fragment missing guid")
	}

	rec, err := m.load(ctx, frag.GUID)
	created := false
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			// Storage failures degrade to absence; one more push self-heals.
			logging.Error("merger", "record load failed, treating as absent", "guid", frag.GUID, "error", err)
		}
		rec = &TransferRecord{GUID: frag.GUID, Hash: HashPending}
		created = true
	}

	m.merge(rec, frag)

	data, err := json.Marshal(rec)
	if err != nil {
		m.metrics.IncFragments("dropped")
		return nil, fmt.Errorf("encode record %s: %w", frag.GUID, err)
	}
	if err := m.store.Set(ctx, recordKey(frag.GUID), data); err != nil {
		m.metrics.IncFragments("dropped")
		return nil, fmt.Errorf("persist record %s: %w", frag.GUID, err)
	}
	if created {
		if err := m.store.IndexAppend(ctx, frag.GUID); err != nil {
			logging.Error("merger", "index append failed", "guid", frag.GUID, "error", err)
		}
	}

	m.metrics.IncFragments("merged")
	return rec, nil
}

func (m *Merger) load(ctx context.Context, guid string) (*TransferRecord, error) {
	data, err := m.store.Get(ctx, recordKey(guid))
	if err != nil {
		return nil, err
	}
	var rec TransferRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", guid, err)
	}
	return &rec, nil
}

func (m *Merger) merge(rec *TransferRecord, frag MetadataFragment) {
	if frag.SourceURL != "" {
		rec.SourceURL = frag.SourceURL
	}
	if frag.ReferringPage != "" {
		rec.ReferringPage = frag.ReferringPage
	}
	if frag.Hash != "" {
		// A computed hash is never replaced by the pending sentinel.
		if !(rec.HashFinal() && frag.Hash == HashPending) {
			rec.Hash = frag.Hash
		}
	}
	if frag.Inspection != nil {
		rec.Inspection = m.mergeInspection(rec.Inspection, frag.Inspection)
	}
}

func (m *Merger) mergeInspection(stored, incoming map[string]any) map[string]any {
	if stored == nil {
		return incoming
	}
	out := make(map[string]any, len(stored)+len(incoming))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range incoming {
		if k == findingsField && m.mergeFindings() {
			out[k] = unionFindings(out[k], v)
			continue
		}
		out[k] = v
	}
	return out
}

func (m *Merger) mergeFindings() bool {
	if m.policy == nil {
		return true
	}
	doc := m.policy.Current()
	if doc == nil {
		return true
	}
	return doc.MergeFindingsEnabled()
}

// unionFindings merges two findings lists, preserving stored order and
// dropping duplicates by canonical JSON encoding.
func unionFindings(stored, incoming any) any {
	storedList, sok := stored.([]any)
	incomingList, iok := incoming.([]any)
	if !iok {
		if sok {
			return storedList
		}
		return incoming
	}
	if !sok {
		return incomingList
	}
	seen := make(map[string]bool, len(storedList))
	out := make([]any, 0, len(storedList)+len(incomingList))
	for _, f := range storedList {
		out = append(out, f)
		seen[canonicalFinding(f)] = true
	}
	for _, f := range incomingList {
		key := canonicalFinding(f)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

func canonicalFinding(f any) string {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf("%v", f)
	}
	return string(data)
}
