package hostbridge

import (
	"context"

	"github.com/filegate/filegate/core/infra/bus"
)

// Publisher is the publish subset of the bus.
type Publisher interface {
	Publish(subject string, env *bus.Envelope) error
}

// UINotifier implements gate.Notifier by publishing fire-and-forget
// notifications for the host UI.
type UINotifier struct {
	bus Publisher
}

func NewUINotifier(b Publisher) *UINotifier {
	return &UINotifier{bus: b}
}

type notifyPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (n *UINotifier) Notify(ctx context.Context, title, body string) error {
	env, err := bus.NewEnvelope(senderID, "ui.notify", notifyPayload{Title: title, Body: body})
	if err != nil {
		return err
	}
	return n.bus.Publish(bus.SubjectNotify, env)
}
