package loop

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// CycleReport summarizes one cycle.
type CycleReport struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	States     []State   `json:"states"`

	Refreshed     int `json:"refreshed"`
	Exits         int `json:"exits"`
	ExitFailures  int `json:"exit_failures"`
	Discovered    int `json:"discovered"`
	Screened      int `json:"screened"`
	Accepted      int `json:"accepted"`
	Admitted      int `json:"admitted"`
	EntryFailures int `json:"entry_failures"`

	Persisted bool   `json:"persisted"`
	Err       string `json:"error,omitempty"`
}

func (o *Orchestrator) publish(ctx context.Context, channel, typ string, payload any) {
	if o.bus == nil {
		return
	}
	data, err := o.envelope(typ, payload)
	if err == nil {
		pctx, cancel := o.sideEffectCtx(ctx)
		err = o.bus.Publish(pctx, channel, data)
		cancel()
	}
	if err != nil {
		o.logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("type", typ),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) appendStream(ctx context.Context, stream, typ string, payload any) {
	if o.bus == nil {
		return
	}
	data, err := o.envelope(typ, payload)
	if err == nil {
		sctx, cancel := o.sideEffectCtx(ctx)
		err = o.bus.StreamAppend(sctx, stream, data)
		cancel()
	}
	if err != nil {
		o.logger.WarnContext(ctx, "stream append failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) envelope(typ string, payload any) ([]byte, error) {
	return json.Marshal(domain.Event{Type: typ, At: o.now().UTC(), Payload: payload})
}
