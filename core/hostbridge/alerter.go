package hostbridge

import (
	"context"

	"github.com/filegate/filegate/core/gate"
	"github.com/filegate/filegate/core/infra/bus"
)

// AlertPublisher implements gate.Alerter. The sink subject comes from the
// live policy document; with no subject configured the alerter reports
// unconfigured and the engine degrades audit actions to block.
type AlertPublisher struct {
	bus    Publisher
	policy gate.PolicySource
}

func NewAlertPublisher(b Publisher, policy gate.PolicySource) *AlertPublisher {
	return &AlertPublisher{bus: b, policy: policy}
}

func (a *AlertPublisher) Configured() bool {
	if a == nil || a.policy == nil {
		return false
	}
	return a.policy.Current().AlertSubject() != ""
}

func (a *AlertPublisher) Send(ctx context.Context, alert gate.Alert) error {
	subject := a.policy.Current().AlertSubject()
	if subject == "" {
		return nil
	}
	env, err := bus.NewEnvelope(senderID, "download.alert", alert)
	if err != nil {
		return err
	}
	return a.bus.Publish(subject, env)
}
