package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Subjects used by the filegate services.
const (
	SubjectTransferMetadata = "transfer.metadata"
	SubjectDownloadCreated  = "download.created"
	SubjectDownloadChanged  = "download.changed"
	SubjectNotify           = "ui.notify"

	SubjectHostSearch     = "host.download.search"
	SubjectHostCancel     = "host.download.cancel"
	SubjectHostRemoveFile = "host.download.removefile"
	SubjectHostErase      = "host.download.erase"
)

var (
	errNilBus      = errors.New("nats bus not initialized")
	errNilEnvelope = errors.New("nil bus envelope")
	errEmptyTopic  = errors.New("empty subject")
)

// Envelope is the JSON message frame carried on every subject.
type Envelope struct {
	TraceID   string          `json:"trace_id,omitempty"`
	SenderID  string          `json:"sender_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Kind      string          `json:"kind,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope frames a payload with a fresh trace id.
func NewEnvelope(sender, kind string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &Envelope{
		TraceID:   uuid.NewString(),
		SenderID:  sender,
		CreatedAt: time.Now().UTC(),
		Kind:      kind,
		Payload:   data,
	}, nil
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v any) error {
	if e == nil {
		return errNilEnvelope
	}
	if len(e.Payload) == 0 {
		return errors.New("empty envelope payload")
	}
	return json.Unmarshal(e.Payload, v)
}

// NatsBus is a thin wrapper over a NATS connection that speaks JSON
// envelopes.
type NatsBus struct {
	nc *nats.Conn
}

// NewNatsBus dials NATS at the provided URL.
func NewNatsBus(url string) (*NatsBus, error) {
	opts := []nats.Option{
		nats.Name("filegate-bus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[BUS] disconnected from NATS: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc}, nil
}

// Close shuts down the underlying NATS connection.
func (b *NatsBus) Close() {
	if b != nil && b.nc != nil {
		b.nc.Close()
	}
}

// Publish sends a JSON-encoded envelope on the given subject.
func (b *NatsBus) Publish(subject string, env *Envelope) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptyTopic
	}
	if env == nil {
		return errNilEnvelope
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.nc.Publish(subject, data)
}

// Subscribe attaches a subscription that decodes envelopes and invokes the
// handler. Handler errors are logged, never fatal.
func (b *NatsBus) Subscribe(subject, queue string, handler func(*Envelope) error) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptyTopic
	}
	if handler == nil {
		return errors.New("nil handler")
	}

	cb := func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Printf("nats bus: failed to unmarshal envelope on %s: %v", msg.Subject, err)
			return
		}
		if err := handler(&env); err != nil {
			log.Printf("nats bus: handler error on %s: %v", msg.Subject, err)
		}
	}
	if queue == "" {
		_, err := b.nc.Subscribe(subject, cb)
		return err
	}
	_, err := b.nc.QueueSubscribe(subject, queue, cb)
	return err
}

// Request performs a request/reply exchange with envelope framing.
func (b *NatsBus) Request(ctx context.Context, subject string, env *Envelope) (*Envelope, error) {
	if b == nil || b.nc == nil {
		return nil, errNilBus
	}
	if subject == "" {
		return nil, errEmptyTopic
	}
	if env == nil {
		return nil, errNilEnvelope
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	msg, err := b.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, err
	}
	var reply Envelope
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode reply on %s: %w", subject, err)
	}
	return &reply, nil
}

func (b *NatsBus) IsConnected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

func (b *NatsBus) ConnectedURL() string {
	if b == nil || b.nc == nil {
		return ""
	}
	return b.nc.ConnectedUrl()
}
