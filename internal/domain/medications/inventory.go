package medications

import "time"

type Inventory struct {
	MedicationID string

	Quantity        float64
	DoseAmount      float64 // lo que consume cada take por defecto
	RefillThreshold float64

	UpdatedAt time.Time
}

// InventoryStatus se expone al caller y al dispatcher (low supply).
type InventoryStatus string

const (
	InventoryOK             InventoryStatus = "ok"
	InventoryBelowThreshold InventoryStatus = "below_threshold"
	InventoryDepleted       InventoryStatus = "depleted"
	InventoryUntracked      InventoryStatus = ""
)

func (inv Inventory) Status() InventoryStatus {
	switch {
	case inv.Quantity <= 0:
		return InventoryDepleted
	case inv.Quantity <= inv.RefillThreshold:
		return InventoryBelowThreshold
	default:
		return InventoryOK
	}
}

// Consume descuenta qty. Política: si no alcanza, se clampa a 0 (el dose ya se tomó
// y se registra igual) y queda depleted. Devuelve lo efectivamente descontado.
func (inv *Inventory) Consume(qty float64) float64 {
	if qty <= 0 {
		return 0
	}
	if qty > inv.Quantity {
		qty = inv.Quantity
	}
	inv.Quantity -= qty
	if inv.Quantity < 0 {
		inv.Quantity = 0
	}
	return qty
}

func (inv *Inventory) Refill(qty float64) {
	if qty <= 0 {
		return
	}
	inv.Quantity += qty
}

// Crossed indica si pasar de before a after merece un aviso de low supply:
// solo cuando el status empeora (ok -> below, below -> depleted, ok -> depleted).
func Crossed(before, after InventoryStatus) bool {
	rank := func(s InventoryStatus) int {
		switch s {
		case InventoryBelowThreshold:
			return 1
		case InventoryDepleted:
			return 2
		default:
			return 0
		}
	}
	return rank(after) > rank(before)
}
