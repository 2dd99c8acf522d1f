package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/ports/capabilities"
)

const DefaultTimeout = 15 * time.Second

type Options struct {
	Senders      []Sender
	Capabilities capabilities.CapabilitiesResolver // opcional
	Deliveries   DeliveryRepository                // opcional
	Logger       logger.Logger
	Timeout      time.Duration // por dispatch async
}

// Dispatcher hace fan-out de una notificación a los canales pedidos.
// Un canal que falla no afecta a los demás.
type Dispatcher struct {
	senders    map[Channel]Sender
	caps       capabilities.CapabilitiesResolver
	deliveries DeliveryRepository
	log        logger.Logger
	timeout    time.Duration
	now        func() time.Time

	wg sync.WaitGroup
}

func NewDispatcher(opts Options) *Dispatcher {
	senders := make(map[Channel]Sender, len(opts.Senders))
	for _, s := range opts.Senders {
		if s == nil {
			continue
		}
		senders[s.Channel()] = s
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		senders:    senders,
		caps:       opts.Capabilities,
		deliveries: opts.Deliveries,
		log:        log.With(map[string]any{"component": "dispatcher"}),
		timeout:    timeout,
		now:        time.Now,
	}
}

// Dispatch envía a todos los canales en paralelo y espera los resultados.
// Nunca devuelve error: los fallos quedan en el ChannelResult de cada canal.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification, channels []Channel) []ChannelResult {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}

	channels = dedupe(channels)
	results := make([]ChannelResult, len(channels))

	var g errgroup.Group
	for i, ch := range channels {
		i, ch := i, ch
		g.Go(func() error {
			results[i] = d.sendOne(ctx, n, ch)
			return nil
		})
	}
	_ = g.Wait()

	d.record(ctx, n, results)
	return results
}

// DispatchAsync es fire-and-forget: el caller no espera la entrega.
// Usa su propio contexto con timeout (el del request ya puede estar cancelado).
func (d *Dispatcher) DispatchAsync(n Notification, channels []Channel) {
	if len(channels) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.Dispatch(ctx, n, channels)
	}()
}

// Wait bloquea hasta que terminen los dispatch async en curso (shutdown/tests).
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) sendOne(ctx context.Context, n Notification, ch Channel) ChannelResult {
	start := d.now()
	res := ChannelResult{Channel: ch, AttemptedAt: start}

	err := d.trySend(ctx, n, ch)
	res.Duration = d.now().Sub(start)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrDispatchFailure, ch, err)
		d.log.Warn("notification delivery failed", map[string]any{
			"channel":         string(ch),
			"kind":            string(n.Kind),
			"medication_id":   n.MedicationID,
			"notification_id": n.ID,
			"error":           err,
		})
		return res
	}

	res.OK = true
	d.log.Debug("notification delivered", map[string]any{
		"channel":         string(ch),
		"kind":            string(n.Kind),
		"medication_id":   n.MedicationID,
		"notification_id": n.ID,
	})
	return res
}

func (d *Dispatcher) trySend(ctx context.Context, n Notification, ch Channel) error {
	s, ok := d.senders[ch]
	if !ok {
		return ErrNoSender
	}
	if d.caps != nil {
		allowed, err := d.caps.Has(ctx, n.Recipient.UserID, "notifications:"+string(ch))
		if err != nil {
			return fmt.Errorf("capabilities: %w", err)
		}
		if !allowed {
			return ErrChannelNotAllowed
		}
	}
	return s.Send(ctx, n)
}

func (d *Dispatcher) record(ctx context.Context, n Notification, results []ChannelResult) {
	if d.deliveries == nil || len(results) == 0 {
		return
	}
	ds := make([]Delivery, 0, len(results))
	for _, r := range results {
		dl := Delivery{
			ID:             uuid.NewString(),
			NotificationID: n.ID,
			MedicationID:   n.MedicationID,
			EventID:        n.EventID,
			Kind:           n.Kind,
			Channel:        r.Channel,
			OK:             r.OK,
			AttemptedAt:    r.AttemptedAt,
		}
		if r.Err != nil {
			dl.Error = r.Err.Error()
		}
		ds = append(ds, dl)
	}
	if err := d.deliveries.Record(ctx, ds); err != nil {
		d.log.Error("record deliveries failed", map[string]any{
			"medication_id":   n.MedicationID,
			"notification_id": n.ID,
			"error":           err,
		})
	}
}

func dedupe(in []Channel) []Channel {
	seen := make(map[Channel]struct{}, len(in))
	out := make([]Channel, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
