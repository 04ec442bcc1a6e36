package outlook

import (
	"context"
	"log/slog"
)

// bridge ties the connector to the apartment worker: the whole fetch,
// including attach waits, executes as one unit on the affinitised thread.
type bridge struct {
	worker *Worker
	conn   *connector
	log    *slog.Logger
}

func newBridge(worker *Worker, conn *connector, log *slog.Logger) *bridge {
	if log == nil {
		log = slog.Default()
	}
	return &bridge{worker: worker, conn: conn, log: log}
}

func (b *bridge) FetchAppointments(ctx context.Context, w Window) ([]Appointment, error) {
	var appts []Appointment
	err := b.worker.Do(ctx, func() error {
		var err error
		appts, err = b.conn.fetch(ctx, w)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.log.Debug("fetched appointments", "count", len(appts),
		"from", w.From, "to", w.To)
	return appts, nil
}

func (b *bridge) Close() {
	b.worker.Close()
}
