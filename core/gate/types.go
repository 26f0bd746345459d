package gate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/filegate/filegate/core/infra/bus"
	"github.com/filegate/filegate/core/infra/config"
)

// HashPending is the sentinel hash value submitted by the instrumentation
// agent before content hashing completes.
const HashPending = "Pending"

// ErrNotFound is returned by Store implementations when a key is absent.
var ErrNotFound = errors.New("key not found")

// DownloadState mirrors the host download manager's lifecycle states.
type DownloadState string

const (
	StateInProgress  DownloadState = "in_progress"
	StateInterrupted DownloadState = "interrupted"
	StateComplete    DownloadState = "complete"
)

// TransferRecord is the canonical per-transfer record, keyed by the GUID the
// instrumentation agent assigns to a transfer. Inspection must round-trip an
// empty-but-present map distinctly from nil: a scan that completed with no
// findings still opens the readiness gate.
type TransferRecord struct {
	GUID          string         `json:"guid"`
	SourceURL     string         `json:"source_url,omitempty"`
	ReferringPage string         `json:"referring_page,omitempty"`
	Hash          string         `json:"hash,omitempty"`
	Inspection    map[string]any `json:"inspection"`
	DownloadID    *int64         `json:"download_id,omitempty"`
}

// HashFinal reports whether the record carries a computed hash.
func (r *TransferRecord) HashFinal() bool {
	return r != nil && r.Hash != "" && r.Hash != HashPending
}

// MetadataFragment is one submission from the instrumentation agent. The
// inspection field keeps its empty-vs-absent distinction across the gateway
// re-publish, same as on the stored record.
type MetadataFragment struct {
	GUID          string         `json:"guid"`
	SourceURL     string         `json:"source_url,omitempty"`
	ReferringPage string         `json:"referring_page,omitempty"`
	Hash          string         `json:"hash,omitempty"`
	Inspection    map[string]any `json:"inspection"`
}

// DownloadItem is the host download manager's view of one download.
type DownloadItem struct {
	ID        int64         `json:"id"`
	URL       string        `json:"url"`
	FinalURL  string        `json:"final_url,omitempty"`
	Filename  string        `json:"filename,omitempty"`
	Mime      string        `json:"mime,omitempty"`
	State     DownloadState `json:"state"`
	Exists    bool          `json:"exists,omitempty"`
	StartTime time.Time     `json:"start_time,omitzero"`
	EndTime   time.Time     `json:"end_time,omitzero"`
}

// ResolvedURL returns the final resolved URL, falling back to the request URL.
func (d *DownloadItem) ResolvedURL() string {
	if d == nil {
		return ""
	}
	if d.FinalURL != "" {
		return d.FinalURL
	}
	return d.URL
}

// CreatedEvent announces a download first observed by the host.
type CreatedEvent struct {
	Item         DownloadItem `json:"item"`
	ActiveTabURL string       `json:"active_tab_url,omitempty"`
}

// ChangedEvent carries the delta of a download state change.
type ChangedEvent struct {
	ID           int64          `json:"id"`
	State        *DownloadState `json:"state,omitempty"`
	Filename     *string        `json:"filename,omitempty"`
	Exists       *bool          `json:"exists,omitempty"`
	ActiveTabURL string         `json:"active_tab_url,omitempty"`
}

// Alert describes a fully-resolved download decision for the alert sink.
type Alert struct {
	ID             string       `json:"id"`
	GUID           string       `json:"guid,omitempty"`
	Action         string       `json:"action"`
	DeclaredAction string       `json:"declared_action,omitempty"`
	RuleID         string       `json:"rule_id,omitempty"`
	Item           DownloadItem `json:"item"`
	Hash           string       `json:"hash,omitempty"`
	Verdicts       []string     `json:"verdicts,omitempty"`
	ReferringPage  string       `json:"referring_page,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Store is the session-scoped correlation store. Writes are last-writer-wins
// per key; there are no cross-key transactions. IndexAppend and IndexScan
// maintain the insertion-ordered index of transfer guids that backs the
// heuristic binding scan.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	IndexAppend(ctx context.Context, member string) error
	IndexScan(ctx context.Context) ([]string, error)
}

// Host exposes the download manager primitives the core calls back into.
type Host interface {
	Search(ctx context.Context, id int64) (*DownloadItem, error)
	Cancel(ctx context.Context, id int64) error
	RemoveFile(ctx context.Context, id int64) error
	Erase(ctx context.Context, id int64) error
}

// Notifier delivers a user-facing notification. Fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Alerter publishes alert messages to the configured sink, if any.
type Alerter interface {
	Configured() bool
	Send(ctx context.Context, alert Alert) error
}

// noAlerter stands in when no alerter is wired. It reports unconfigured, so
// audit actions degrade to block.
type noAlerter struct{}

func (noAlerter) Configured() bool                  { return false }
func (noAlerter) Send(context.Context, Alert) error { return nil }

// PolicySource supplies the current policy document. Current may return nil
// when no policy is loaded; the core then blocks nothing (fail-open).
type PolicySource interface {
	Current() *config.PolicyDocument
}

// Bus is the subset of the message bus the engine consumes.
type Bus interface {
	Publish(subject string, env *bus.Envelope) error
	Subscribe(subject, queue string, handler func(*bus.Envelope) error) error
}

// Metrics captures counters for correlation and decision events.
type Metrics interface {
	IncFragments(outcome string)
	IncBindings(method string)
	IncEvaluations(outcome string)
	IncActions(action string)
	IncAlerts(status string)
	IncHostErrors(op string)
}

// NoopMetrics implements Metrics without emitting anything.
type NoopMetrics struct{}

func (NoopMetrics) IncFragments(string)   {}
func (NoopMetrics) IncBindings(string)    {}
func (NoopMetrics) IncEvaluations(string) {}
func (NoopMetrics) IncActions(string)     {}
func (NoopMetrics) IncAlerts(string)      {}
func (NoopMetrics) IncHostErrors(string)  {}

// Session-store key layout: GUID_<guid> holds the transfer record,
// DownloadID_<id> maps a host download id to a guid, and the bare guid maps
// back to the download id.

func recordKey(guid string) string {
	return "GUID_" + guid
}

func bindingKey(downloadID int64) string {
	return "DownloadID_" + strconv.FormatInt(downloadID, 10)
}

func reverseKey(guid string) string {
	return guid
}
