package transitions

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"medication-reminder/internal/domain/medications"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, eng *Engine, medsSvc *medications.Service) {
	r.Route("/medications/{medicationID}/slots/{slotID}", func(sr chi.Router) {
		sr.Post("/take", takeHandler(eng, medsSvc))
		sr.Post("/skip", skipHandler(eng, medsSvc))
		sr.Post("/miss", missHandler(eng, medsSvc))
		sr.Post("/delay", delayHandler(eng, medsSvc))
	})

	r.Post("/medications/{medicationID}/refill", refillHandler(eng, medsSvc))
}

type takeRequest struct {
	ActualAt string   `json:"actual_at"` // RFC3339 opcional; default now
	Quantity *float64 `json:"quantity"`  // opcional; default dose_amount
}

type skipRequest struct {
	Reason string `json:"reason"`
}

type delayRequest struct {
	Hours float64 `json:"hours" example:"2"`
}

type refillRequest struct {
	Quantity float64 `json:"quantity"`
}

type eventSummary struct {
	ID          string             `json:"id"`
	SlotID      string             `json:"slot_id"`
	Action      medications.Action `json:"action"`
	ScheduledAt time.Time          `json:"scheduled_at"`
	ActualAt    *time.Time         `json:"actual_at,omitempty"`
	Quantity    float64            `json:"quantity,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	RecordedAt  time.Time          `json:"recorded_at"`
}

type streakSummary struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

type takeResponse struct {
	Event           eventSummary                `json:"event"`
	NextReminderAt  time.Time                   `json:"next_reminder_at"`
	NextSlotID      string                      `json:"next_slot_id"`
	Streak          streakSummary               `json:"streak"`
	InventoryStatus medications.InventoryStatus `json:"inventory_status,omitempty"`
	Quantity        *float64                    `json:"inventory_quantity,omitempty"`
	LowSupply       bool                        `json:"low_supply"`
}

type skipResponse struct {
	Event          eventSummary  `json:"event"`
	NextReminderAt time.Time     `json:"next_reminder_at"`
	NextSlotID     string        `json:"next_slot_id"`
	Streak         streakSummary `json:"streak"`
}

type missResponse struct {
	Event  eventSummary  `json:"event"`
	Streak streakSummary `json:"streak"`
}

type delayResponse struct {
	Event          eventSummary `json:"event"`
	NextReminderAt time.Time    `json:"next_reminder_at"`
}

type refillResponse struct {
	Quantity float64                     `json:"quantity"`
	Status   medications.InventoryStatus `json:"status"`
}

// takeHandler godoc
// @Summary Marcar dose como tomado
// @Description Registra el dose como tomado, agenda el próximo recordatorio, descuenta inventario y extiende el streak. Para intervalos el próximo se calcula desde actual_at.
// @Tags transitions
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param medicationID path string true "ID de la medicación"
// @Param slotID path string true "ID del slot"
// @Param payload body takeRequest false "actual_at (RFC3339) y quantity opcionales"
// @Success 200 {object} takeResponse
// @Failure 400 {string} string "invalid json / quantity inválida"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found / slot not found"
// @Failure 409 {string} string "estado inválido / modificación concurrente"
// @Router /medications/{medicationID}/slots/{slotID}/take [post]
func takeHandler(eng *Engine, medsSvc *medications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := medications.AuthorizeOwner(w, r, medsSvc)
		if !ok {
			return
		}

		var req takeRequest
		if !decodeOptional(w, r, &req) {
			return
		}

		in := TakeInput{Quantity: req.Quantity}
		if strings.TrimSpace(req.ActualAt) != "" {
			t, err := time.Parse(time.RFC3339, req.ActualAt)
			if err != nil {
				http.Error(w, "actual_at must be RFC3339", http.StatusBadRequest)
				return
			}
			in.ActualAt = &t
		}

		res, err := eng.Take(r.Context(), m.ID, chi.URLParam(r, "slotID"), in)
		if err != nil {
			writeError(w, err)
			return
		}

		out := takeResponse{
			Event:           toEventSummary(res.Event),
			NextReminderAt:  res.NextReminder,
			NextSlotID:      res.NextSlotID,
			Streak:          streakSummary{Current: res.Streak.Current, Longest: res.Streak.Longest},
			InventoryStatus: res.InventoryStatus,
			LowSupply:       res.LowSupply,
		}
		if res.Inventory != nil {
			q := res.Inventory.Quantity
			out.Quantity = &q
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// skipHandler godoc
// @Summary Saltear dose
// @Description Registra el dose como salteado (con motivo opcional). El schedule sigue: se agenda el próximo recordatorio. Resetea el streak.
// @Tags transitions
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param medicationID path string true "ID de la medicación"
// @Param slotID path string true "ID del slot"
// @Param payload body skipRequest false "Motivo opcional"
// @Success 200 {object} skipResponse
// @Failure 400 {string} string "invalid json"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found / slot not found"
// @Failure 409 {string} string "estado inválido / modificación concurrente"
// @Router /medications/{medicationID}/slots/{slotID}/skip [post]
func skipHandler(eng *Engine, medsSvc *medications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := medications.AuthorizeOwner(w, r, medsSvc)
		if !ok {
			return
		}

		var req skipRequest
		if !decodeOptional(w, r, &req) {
			return
		}

		res, err := eng.Skip(r.Context(), m.ID, chi.URLParam(r, "slotID"), req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, skipResponse{
			Event:          toEventSummary(res.Event),
			NextReminderAt: res.NextReminder,
			NextSlotID:     res.NextSlotID,
			Streak:         streakSummary{Current: res.Streak.Current, Longest: res.Streak.Longest},
		})
	}
}

// missHandler godoc
// @Summary Marcar dose como perdido
// @Description Registra el dose como perdido y resetea el streak. El avance al próximo ciclo lo hace el job de missed.
// @Tags transitions
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param medicationID path string true "ID de la medicación"
// @Param slotID path string true "ID del slot"
// @Success 200 {object} missResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found / slot not found"
// @Failure 409 {string} string "estado inválido / modificación concurrente"
// @Router /medications/{medicationID}/slots/{slotID}/miss [post]
func missHandler(eng *Engine, medsSvc *medications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := medications.AuthorizeOwner(w, r, medsSvc)
		if !ok {
			return
		}

		res, err := eng.Miss(r.Context(), m.ID, chi.URLParam(r, "slotID"))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, missResponse{
			Event:  toEventSummary(res.Event),
			Streak: streakSummary{Current: res.Streak.Current, Longest: res.Streak.Longest},
		})
	}
}

// delayHandler godoc
// @Summary Posponer recordatorio
// @Description Corre el recordatorio a now + hours. El dose sigue pendiente y se registra un evento delayed.
// @Tags transitions
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param medicationID path string true "ID de la medicación"
// @Param slotID path string true "ID del slot"
// @Param payload body delayRequest true "Horas a posponer (> 0)"
// @Success 200 {object} delayResponse
// @Failure 400 {string} string "invalid json / hours inválido"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found / slot not found"
// @Failure 409 {string} string "estado inválido / modificación concurrente"
// @Router /medications/{medicationID}/slots/{slotID}/delay [post]
func delayHandler(eng *Engine, medsSvc *medications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := medications.AuthorizeOwner(w, r, medsSvc)
		if !ok {
			return
		}

		var req delayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		res, err := eng.Delay(r.Context(), m.ID, chi.URLParam(r, "slotID"), req.Hours)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, delayResponse{
			Event:          toEventSummary(res.Event),
			NextReminderAt: res.NewReminder,
		})
	}
}

// refillHandler godoc
// @Summary Reponer inventario
// @Tags transitions
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param medicationID path string true "ID de la medicación"
// @Param payload body refillRequest true "Cantidad a sumar (> 0)"
// @Success 200 {object} refillResponse
// @Failure 400 {string} string "invalid json / quantity inválida"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found"
// @Failure 409 {string} string "modificación concurrente"
// @Router /medications/{medicationID}/refill [post]
func refillHandler(eng *Engine, medsSvc *medications.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := medications.AuthorizeOwner(w, r, medsSvc)
		if !ok {
			return
		}

		var req refillRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		res, err := eng.Refill(r.Context(), m.ID, req.Quantity)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, refillResponse{
			Quantity: res.Inventory.Quantity,
			Status:   res.Status,
		})
	}
}

// decodeOptional acepta body vacío (take/skip no requieren payload).
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	http.Error(w, "invalid json", http.StatusBadRequest)
	return false
}

// writeError mapea la taxonomía de errores del motor a status HTTP.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidDelay),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnknownFrequency),
		errors.Is(err, ErrInvalidInterval):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrSlotNotFound):
		http.Error(w, "slot not found", http.StatusNotFound)
	case errors.Is(err, medications.ErrNotFound):
		http.Error(w, "medication not found", http.StatusNotFound)
	case errors.Is(err, ErrBadState), errors.Is(err, ErrConcurrentModification):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toEventSummary(e medications.DoseEvent) eventSummary {
	return eventSummary{
		ID:          e.ID,
		SlotID:      e.SlotID,
		Action:      e.Action,
		ScheduledAt: e.ScheduledAt,
		ActualAt:    e.ActualAt,
		Quantity:    e.Quantity,
		Reason:      e.Reason,
		RecordedAt:  e.RecordedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
