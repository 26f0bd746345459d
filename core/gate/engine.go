package gate

import (
	"context"
	"time"

	"github.com/google/uuid"

	infrabus "github.com/filegate/filegate/core/infra/bus"
	"github.com/filegate/filegate/core/infra/config"
	"github.com/filegate/filegate/core/infra/logging"
)

const (
	engineQueue = "filegate-core"

	// actionAllow is reported on alerts when no rule matched and the
	// download was left untouched.
	actionAllow = "allow"
)

// Engine is the readiness gate and rule engine. It is invoked on every
// lifecycle event and every metadata push; every step is a pure function of
// current store state, so redundant invocations are safe: deferred
// evaluations have no side effects and executed decisions are idempotent at
// the host boundary.
type Engine struct {
	store    Store
	host     Host
	notifier Notifier
	alerter  Alerter
	policy   PolicySource
	metrics  Metrics

	merger   *Merger
	binder   *Binder
	executor *Executor
}

func NewEngine(store Store, host Host, notifier Notifier, alerter Alerter, policy PolicySource, metrics Metrics) *Engine {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if alerter == nil {
		alerter = noAlerter{}
	}
	return &Engine{
		store:    store,
		host:     host,
		notifier: notifier,
		alerter:  alerter,
		policy:   policy,
		metrics:  metrics,
		merger:   NewMerger(store, policy, metrics),
		binder:   NewBinder(store, metrics),
		executor: NewExecutor(host, metrics),
	}
}

// Start registers the engine's bus subscriptions.
func (e *Engine) Start(b Bus) error {
	if err := b.Subscribe(infrabus.SubjectTransferMetadata, engineQueue, e.handleMetadataEnvelope); err != nil {
		return err
	}
	if err := b.Subscribe(infrabus.SubjectDownloadCreated, engineQueue, e.handleCreatedEnvelope); err != nil {
		return err
	}
	if err := b.Subscribe(infrabus.SubjectDownloadChanged, engineQueue, e.handleChangedEnvelope); err != nil {
		return err
	}
	return nil
}

func (e *Engine) handleMetadataEnvelope(env *infrabus.Envelope) error {
	var frag MetadataFragment
	if err := env.Decode(&frag); err != nil {
		e.metrics.IncFragments("dropped")
		logging.Error("gate", "malformed metadata fragment dropped", "error", err)
		return nil
	}
	if err := e.HandleFragment(context.Background(), frag); err != nil {
		logging.Error("gate", "fragment handling failed", "guid", frag.GUID, "error", err)
	}
	return nil
}

func (e *Engine) handleCreatedEnvelope(env *infrabus.Envelope) error {
	var ev CreatedEvent
	if err := env.Decode(&ev); err != nil {
		logging.Error("gate", "malformed created event dropped", "error", err)
		return nil
	}
	if err := e.HandleCreated(context.Background(), ev); err != nil {
		logging.Error("gate", "created handling failed", "download_id", ev.Item.ID, "error", err)
	}
	return nil
}

func (e *Engine) handleChangedEnvelope(env *infrabus.Envelope) error {
	var ev ChangedEvent
	if err := env.Decode(&ev); err != nil {
		logging.Error("gate", "malformed changed event dropped", "error", err)
		return nil
	}
	if err := e.HandleChanged(context.Background(), ev); err != nil {
		logging.Error("gate", "changed handling failed", "download_id", ev.ID, "error", err)
	}
	return nil
}

// HandleFragment merges one metadata fragment and re-triggers evaluation
// when the transfer is already bound to a completed download.
func (e *Engine) HandleFragment(ctx context.Context, frag MetadataFragment) error {
	rec, err := e.merger.Apply(ctx, frag)
	if err != nil {
		return err
	}

	id, bound := e.binder.BoundDownloadID(ctx, rec.GUID)
	if !bound && rec.DownloadID != nil {
		id, bound = *rec.DownloadID, true
	}
	if !bound {
		logging.Debug("gate", "fragment merged, no download bound yet", "guid", rec.GUID)
		return nil
	}

	item, err := e.host.Search(ctx, id)
	if err != nil {
		logging.Error("gate", "host search failed", "download_id", id, "error", err)
		return nil
	}
	if item == nil {
		return nil
	}
	e.Evaluate(ctx, item, "")
	return nil
}

// HandleCreated runs the binder for a download first observed by the host.
func (e *Engine) HandleCreated(ctx context.Context, ev CreatedEvent) error {
	item := ev.Item
	rec, err := e.binder.Resolve(ctx, &item)
	if err != nil {
		return err
	}
	if rec == nil {
		logging.Debug("gate", "created download has no metadata yet", "download_id", item.ID, "url", item.ResolvedURL())
	}
	e.Evaluate(ctx, &item, ev.ActiveTabURL)
	return nil
}

// HandleChanged re-resolves the download and evaluates it when complete.
func (e *Engine) HandleChanged(ctx context.Context, ev ChangedEvent) error {
	item, err := e.host.Search(ctx, ev.ID)
	if err != nil {
		logging.Error("gate", "host search failed", "download_id", ev.ID, "error", err)
		return nil
	}
	if item == nil {
		logging.Debug("gate", "changed download not found on host", "download_id", ev.ID)
		return nil
	}
	e.Evaluate(ctx, item, ev.ActiveTabURL)
	return nil
}

// Evaluate runs the readiness gate and rule engine for one download. It is
// idempotent and may be invoked any number of times as information arrives.
func (e *Engine) Evaluate(ctx context.Context, item *DownloadItem, activeTabURL string) {
	if item == nil || item.State != StateComplete {
		return
	}

	rec, err := e.binder.Resolve(ctx, item)
	if err != nil {
		logging.Error("gate", "binding resolution failed", "download_id", item.ID, "error", err)
		return
	}

	// Readiness gate: with a record present, hold the decision until the
	// hash is computed and inspection data has arrived. A download with no
	// record at all is judged on host-visible attributes alone.
	if rec != nil && (!rec.HashFinal() || rec.Inspection == nil) {
		e.metrics.IncEvaluations("deferred")
		logging.Info("gate", "evaluation deferred awaiting metadata", "download_id", item.ID, "guid", rec.GUID, "hash", rec.Hash)
		return
	}

	dctx := buildDecisionContext(item, rec, activeTabURL)
	guid := ""
	if rec != nil {
		guid = rec.GUID
	}

	doc := e.policy.Current()
	var rule *config.Rule
	if doc != nil {
		rule = doc.MatchedRule(dctx.policyInput())
	}

	if rule == nil {
		// No policy applies: the download is left untouched.
		e.metrics.IncEvaluations("no_match")
		e.sendAlert(ctx, item, dctx, guid, "", actionAllow, actionAllow)
		return
	}
	e.metrics.IncEvaluations("matched")

	declared := config.RuleAction(rule)
	effective := declared
	if declared == config.ActionAudit && !e.alerter.Configured() {
		// An unobserved audit provides no value; block instead.
		effective = config.ActionBlock
		logging.Info("gate", "audit action with no alert sink, treating as block", "download_id", item.ID, "rule", rule.ID)
	}

	if effective != config.ActionNotify && effective != config.ActionAudit {
		e.executor.Block(ctx, item)
	}
	e.metrics.IncActions(effective)

	if effective != config.ActionAudit {
		title, body := notification(rule, effective, dctx)
		if err := e.notifier.Notify(ctx, title, body); err != nil {
			logging.Error("gate", "notification failed", "download_id", item.ID, "error", err)
		}
	}

	logging.Info("gate", "decision made",
		"download_id", item.ID,
		"guid", guid,
		"rule", rule.ID,
		"action", effective,
		"declared_action", declared,
		"filename", dctx.Filename,
	)
	e.sendAlert(ctx, item, dctx, guid, rule.ID, declared, effective)
}

func (e *Engine) sendAlert(ctx context.Context, item *DownloadItem, dctx *DecisionContext, guid, ruleID, declared, effective string) {
	if !e.alerter.Configured() {
		e.metrics.IncAlerts("skipped")
		return
	}
	alert := Alert{
		ID:             uuid.NewString(),
		GUID:           guid,
		Action:         effective,
		DeclaredAction: declared,
		RuleID:         ruleID,
		Item:           *item,
		Hash:           dctx.Hash,
		Verdicts:       dctx.Verdicts,
		ReferringPage:  dctx.Referrer,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.alerter.Send(ctx, alert); err != nil {
		// Alert failures never block enforcement.
		e.metrics.IncAlerts("failed")
		logging.Error("gate", "alert send failed", "download_id", item.ID, "error", err)
		return
	}
	e.metrics.IncAlerts("sent")
}
