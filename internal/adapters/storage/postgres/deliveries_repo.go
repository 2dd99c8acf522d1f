package postgres

import (
	"context"
	"database/sql"

	"medication-reminder/internal/notify"
)

type DeliveriesRepo struct {
	db *sql.DB
}

func NewDeliveriesRepo(db *sql.DB) *DeliveriesRepo {
	return &DeliveriesRepo{db: db}
}

func (r *DeliveriesRepo) Record(ctx context.Context, ds []notify.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range ds {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notification_deliveries (
				id, notification_id, medication_id, event_id,
				kind, channel, ok, error, attempted_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			d.ID,
			d.NotificationID,
			d.MedicationID,
			d.EventID,
			string(d.Kind),
			string(d.Channel),
			d.OK,
			d.Error,
			d.AttemptedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *DeliveriesRepo) ListByMedication(ctx context.Context, medicationID string, limit int) ([]notify.Delivery, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, notification_id, medication_id, event_id,
			kind, channel, ok, error, attempted_at
		FROM notification_deliveries
		WHERE medication_id = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`, medicationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]notify.Delivery, 0)
	for rows.Next() {
		var d notify.Delivery
		var kind, channel string
		if err := rows.Scan(
			&d.ID,
			&d.NotificationID,
			&d.MedicationID,
			&d.EventID,
			&kind,
			&channel,
			&d.OK,
			&d.Error,
			&d.AttemptedAt,
		); err != nil {
			return nil, err
		}
		d.Kind = notify.Kind(kind)
		d.Channel = notify.Channel(channel)
		out = append(out, d)
	}
	return out, rows.Err()
}
