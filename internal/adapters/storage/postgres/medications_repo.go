package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"medication-reminder/internal/domain/frequency"
	"medication-reminder/internal/domain/medications"
	"medication-reminder/internal/domain/streak"
	"medication-reminder/internal/notify"
)

type MedicationsRepo struct {
	db *sql.DB
}

func NewMedicationsRepo(db *sql.DB) *MedicationsRepo {
	return &MedicationsRepo{db: db}
}

const medicationColumns = `
	id, owner_user_id,
	name, dosage, instructions,
	frequency_tag, frequency_hours, frequency_times,
	timezone, channels,
	contact_email, contact_phone, contact_device_id,
	inv_quantity, inv_dose_amount, inv_refill_threshold, inv_updated_at,
	revision, created_at, updated_at
`

const slotColumns = `
	id, medication_id,
	time_of_day, position,
	status, taken,
	last_taken_at, scheduled_at, next_reminder_at, last_notified_at,
	updated_at
`

func (r *MedicationsRepo) Create(ctx context.Context, m medications.Medication, slots []medications.Slot, st streak.Streak) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	inv := inventoryColumns(m.Inventory)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO medications (`+medicationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		m.ID,
		m.OwnerUserID,
		m.Name,
		m.Dosage,
		m.Instructions,
		string(m.Frequency.Tag),
		m.Frequency.Hours,
		strings.Join(m.Frequency.Times, ","),
		m.Timezone,
		joinChannels(m.Channels),
		m.Contact.Email,
		m.Contact.Phone,
		m.Contact.DeviceID,
		inv.quantity,
		inv.doseAmount,
		inv.threshold,
		inv.updatedAt,
		m.Revision,
		m.CreatedAt,
		m.UpdatedAt,
	); err != nil {
		return err
	}

	for _, s := range slots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO medication_slots (`+slotColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, slotArgs(s)...); err != nil {
			return err
		}
	}

	if err := upsertStreak(ctx, tx, m.ID, st); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *MedicationsRepo) GetByID(ctx context.Context, id string) (medications.Medication, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return medications.Medication{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+medicationColumns+` FROM medications WHERE id = $1`, id)
	return scanMedication(row)
}

func (r *MedicationsRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]medications.Medication, error) {
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+medicationColumns+`
		FROM medications
		WHERE owner_user_id = $1
		ORDER BY created_at ASC
	`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]medications.Medication, 0)
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete borra en cascada slots, streak y eventos.
func (r *MedicationsRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM medications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MedicationsRepo) GetState(ctx context.Context, medicationID string) (medications.State, error) {
	m, err := r.GetByID(ctx, medicationID)
	if err != nil {
		return medications.State{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+slotColumns+`
		FROM medication_slots
		WHERE medication_id = $1
	`, medicationID)
	if err != nil {
		return medications.State{}, err
	}
	defer rows.Close()

	slots := make([]medications.Slot, 0)
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return medications.State{}, err
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return medications.State{}, err
	}
	medications.SortSlots(slots)

	st := streak.New(medicationID)
	var lastTaken sql.NullTime
	err = r.db.QueryRowContext(ctx, `
		SELECT current, longest, last_taken, taken_count, skipped_count, missed_count, updated_at
		FROM medication_streaks
		WHERE medication_id = $1
	`, medicationID).Scan(
		&st.Current,
		&st.Longest,
		&lastTaken,
		&st.TakenCount,
		&st.SkippedCount,
		&st.MissedCount,
		&st.UpdatedAt,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return medications.State{}, err
	}
	st.LastTaken = fromNullTime(lastTaken)

	return medications.State{Medication: m, Slots: slots, Streak: st}, nil
}

// Commit aplica la transición en una sola transacción.
// El UPDATE condicionado por revision es el guard optimista.
func (r *MedicationsRepo) Commit(ctx context.Context, c medications.Commit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	at := c.At
	if at.IsZero() {
		at = time.Now()
	}

	var res sql.Result
	if c.Inventory != nil {
		inv := inventoryColumns(c.Inventory)
		res, err = tx.ExecContext(ctx, `
			UPDATE medications
			SET
				revision = revision + 1,
				updated_at = $3,
				inv_quantity = $4,
				inv_dose_amount = $5,
				inv_refill_threshold = $6,
				inv_updated_at = $7
			WHERE id = $1 AND revision = $2
		`, c.MedicationID, c.ExpectedRevision, at, inv.quantity, inv.doseAmount, inv.threshold, inv.updatedAt)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE medications
			SET revision = revision + 1, updated_at = $3
			WHERE id = $1 AND revision = $2
		`, c.MedicationID, c.ExpectedRevision, at)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM medications WHERE id = $1)`, c.MedicationID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return medications.ErrConcurrentModification
	}

	for _, s := range c.Slots {
		res, err := tx.ExecContext(ctx, `
			UPDATE medication_slots
			SET
				status = $3,
				taken = $4,
				last_taken_at = $5,
				scheduled_at = $6,
				next_reminder_at = $7,
				last_notified_at = $8,
				updated_at = $9
			WHERE id = $1 AND medication_id = $2
		`,
			s.ID,
			c.MedicationID,
			string(s.Status),
			s.Taken,
			toNullTime(s.LastTakenAt),
			toNullTime(s.ScheduledAt),
			toNullTime(s.NextReminderAt),
			toNullTime(s.LastNotifiedAt),
			s.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return medications.ErrSlotNotFound
		}
	}

	if c.Streak != nil {
		if err := upsertStreak(ctx, tx, c.MedicationID, *c.Streak); err != nil {
			return err
		}
	}

	for _, e := range c.Events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dose_events (
				id, medication_id, slot_id,
				action, scheduled_at, actual_at,
				quantity, reason, delay_seconds,
				recorded_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			e.ID,
			c.MedicationID,
			e.SlotID,
			string(e.Action),
			e.ScheduledAt,
			toNullTime(e.ActualAt),
			e.Quantity,
			e.Reason,
			int64(e.Delay/time.Second),
			e.RecordedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *MedicationsRepo) ListEvents(ctx context.Context, medicationID string, filter medications.EventFilter) ([]medications.DoseEvent, error) {
	medicationID = strings.TrimSpace(medicationID)
	if medicationID == "" {
		return nil, nil
	}

	sb := strings.Builder{}
	sb.WriteString(`
		SELECT
			id, medication_id, slot_id,
			action, scheduled_at, actual_at,
			quantity, reason, delay_seconds,
			recorded_at
		FROM dose_events
		WHERE medication_id = $1
	`)

	args := []any{medicationID}
	argN := 2

	if len(filter.Actions) > 0 {
		placeholders := make([]string, 0, len(filter.Actions))
		for _, a := range filter.Actions {
			placeholders = append(placeholders, fmt.Sprintf("$%d", argN))
			args = append(args, string(a))
			argN++
		}
		sb.WriteString(" AND action IN (" + strings.Join(placeholders, ",") + ")")
	}
	if filter.From != nil {
		sb.WriteString(fmt.Sprintf(" AND scheduled_at >= $%d", argN))
		args = append(args, *filter.From)
		argN++
	}
	if filter.To != nil {
		sb.WriteString(fmt.Sprintf(" AND scheduled_at <= $%d", argN))
		args = append(args, *filter.To)
		argN++
	}

	if filter.Ascending {
		sb.WriteString(" ORDER BY seq ASC")
	} else {
		sb.WriteString(" ORDER BY seq DESC")
	}
	if filter.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", argN))
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]medications.DoseEvent, 0)
	for rows.Next() {
		var (
			e      medications.DoseEvent
			action string
			actual sql.NullTime
			delay  int64
		)
		if err := rows.Scan(
			&e.ID,
			&e.MedicationID,
			&e.SlotID,
			&action,
			&e.ScheduledAt,
			&actual,
			&e.Quantity,
			&e.Reason,
			&delay,
			&e.RecordedAt,
		); err != nil {
			return nil, err
		}
		e.Action = medications.Action(action)
		e.ActualAt = fromNullTime(actual)
		e.Delay = time.Duration(delay) * time.Second
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *MedicationsRepo) ListDueSlots(ctx context.Context, before time.Time, limit int) ([]medications.Slot, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+slotColumns+`
		FROM medication_slots
		WHERE status IN ('upcoming', 'missed')
			AND next_reminder_at IS NOT NULL
			AND next_reminder_at <= $1
		ORDER BY next_reminder_at ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]medications.Slot, 0)
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedication(row rowScanner) (medications.Medication, error) {
	var (
		m                       medications.Medication
		tag, times, channels    string
		invQty, invDose, invThr sql.NullFloat64
		invUpdated              sql.NullTime
	)
	if err := row.Scan(
		&m.ID,
		&m.OwnerUserID,
		&m.Name,
		&m.Dosage,
		&m.Instructions,
		&tag,
		&m.Frequency.Hours,
		&times,
		&m.Timezone,
		&channels,
		&m.Contact.Email,
		&m.Contact.Phone,
		&m.Contact.DeviceID,
		&invQty,
		&invDose,
		&invThr,
		&invUpdated,
		&m.Revision,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return medications.Medication{}, ErrNotFound
		}
		return medications.Medication{}, err
	}

	m.Frequency.Tag = frequency.Tag(tag)
	m.Frequency.Times = splitList(times)
	for _, c := range splitList(channels) {
		m.Channels = append(m.Channels, notify.Channel(c))
	}

	if invQty.Valid {
		m.Inventory = &medications.Inventory{
			MedicationID:    m.ID,
			Quantity:        invQty.Float64,
			DoseAmount:      invDose.Float64,
			RefillThreshold: invThr.Float64,
		}
		if invUpdated.Valid {
			m.Inventory.UpdatedAt = invUpdated.Time
		}
	}
	return m, nil
}

func scanSlot(row rowScanner) (medications.Slot, error) {
	var (
		s                                      medications.Slot
		tod                                    sql.NullInt64
		status                                 string
		lastTaken, schedAt, nextAt, lastNotify sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.MedicationID,
		&tod,
		&s.Position,
		&status,
		&s.Taken,
		&lastTaken,
		&schedAt,
		&nextAt,
		&lastNotify,
		&s.UpdatedAt,
	); err != nil {
		return medications.Slot{}, err
	}

	if tod.Valid {
		t := frequency.TimeOfDay(tod.Int64)
		s.TimeOfDay = &t
	}
	s.Status = medications.SlotStatus(status)
	s.LastTakenAt = fromNullTime(lastTaken)
	s.ScheduledAt = fromNullTime(schedAt)
	s.NextReminderAt = fromNullTime(nextAt)
	if s.ScheduledAt == nil && s.NextReminderAt != nil {
		s.ScheduledAt = fromNullTime(nextAt) // filas previas a scheduled_at
	}
	s.LastNotifiedAt = fromNullTime(lastNotify)
	return s, nil
}

func slotArgs(s medications.Slot) []any {
	var tod sql.NullInt64
	if s.TimeOfDay != nil {
		tod = sql.NullInt64{Int64: int64(*s.TimeOfDay), Valid: true}
	}
	return []any{
		s.ID,
		s.MedicationID,
		tod,
		s.Position,
		string(s.Status),
		s.Taken,
		toNullTime(s.LastTakenAt),
		toNullTime(s.ScheduledAt),
		toNullTime(s.NextReminderAt),
		toNullTime(s.LastNotifiedAt),
		s.UpdatedAt,
	}
}

func upsertStreak(ctx context.Context, tx *sql.Tx, medicationID string, st streak.Streak) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO medication_streaks (
			medication_id, current, longest, last_taken,
			taken_count, skipped_count, missed_count, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (medication_id) DO UPDATE SET
			current = EXCLUDED.current,
			longest = EXCLUDED.longest,
			last_taken = EXCLUDED.last_taken,
			taken_count = EXCLUDED.taken_count,
			skipped_count = EXCLUDED.skipped_count,
			missed_count = EXCLUDED.missed_count,
			updated_at = EXCLUDED.updated_at
	`,
		medicationID,
		st.Current,
		st.Longest,
		toNullTime(st.LastTaken),
		st.TakenCount,
		st.SkippedCount,
		st.MissedCount,
		st.UpdatedAt,
	)
	return err
}

type invCols struct {
	quantity, doseAmount, threshold sql.NullFloat64
	updatedAt                       sql.NullTime
}

func inventoryColumns(inv *medications.Inventory) invCols {
	if inv == nil {
		return invCols{}
	}
	return invCols{
		quantity:   sql.NullFloat64{Float64: inv.Quantity, Valid: true},
		doseAmount: sql.NullFloat64{Float64: inv.DoseAmount, Valid: true},
		threshold:  sql.NullFloat64{Float64: inv.RefillThreshold, Valid: true},
		updatedAt:  sql.NullTime{Time: inv.UpdatedAt, Valid: !inv.UpdatedAt.IsZero()},
	}
}

func joinChannels(cs []notify.Channel) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, string(c))
	}
	return strings.Join(parts, ",")
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
