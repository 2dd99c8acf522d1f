package memory

import (
	"context"
	"sort"
	"sync"

	"medication-reminder/internal/notify"
)

type deliveryRepo struct {
	mu           sync.RWMutex
	byMedication map[string][]notify.Delivery
}

func NewDeliveryRepo() notify.DeliveryRepository {
	return &deliveryRepo{
		byMedication: make(map[string][]notify.Delivery),
	}
}

func (r *deliveryRepo) Record(ctx context.Context, ds []notify.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range ds {
		r.byMedication[d.MedicationID] = append(r.byMedication[d.MedicationID], d)
	}
	return nil
}

// ListByMedication devuelve más reciente primero.
func (r *deliveryRepo) ListByMedication(ctx context.Context, medicationID string, limit int) ([]notify.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.byMedication[medicationID]
	out := make([]notify.Delivery, len(src))
	copy(out, src)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AttemptedAt.After(out[j].AttemptedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
