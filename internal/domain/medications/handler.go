package medications

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"medication-reminder/internal/domain/frequency"
	"medication-reminder/internal/middleware"
	"medication-reminder/internal/notify"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, deliveries notify.DeliveryRepository) {
	r.Route("/medications", func(mr chi.Router) {
		mr.Post("/", createMedicationHandler(svc))
		mr.Get("/", listMedicationsHandler(svc))

		mr.Get("/{medicationID}", getMedicationHandler(svc))
		mr.Delete("/{medicationID}", deleteMedicationHandler(svc))

		mr.Get("/{medicationID}/slots", listSlotsHandler(svc))
		mr.Get("/{medicationID}/events", listDoseEventsHandler(svc))
		mr.Get("/{medicationID}/streak", getStreakHandler(svc))

		// Log de entregas por canal (solo lectura)
		mr.Get("/{medicationID}/deliveries", listDeliveriesHandler(svc, deliveries))
	})
}

type inventoryRequest struct {
	Quantity        float64 `json:"quantity"`
	DoseAmount      float64 `json:"dose_amount"` // default 1
	RefillThreshold float64 `json:"refill_threshold"`
}

type contactRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	DeviceID string `json:"device_id"`
}

// createMedicationRequest es el cuerpo para registrar una medicación.
type createMedicationRequest struct {
	Name         string            `json:"name"`
	Dosage       string            `json:"dosage"`
	Instructions string            `json:"instructions"`
	Frequency    string            `json:"frequency" example:"twice_daily"`
	Hours        float64           `json:"hours"` // every_X_hours / custom
	Times        []string          `json:"times"` // specific_times, "HH:MM"
	Timezone     string            `json:"timezone" example:"America/Argentina/Buenos_Aires"`
	FirstDoseAt  string            `json:"first_dose_at"` // RFC3339 opcional
	Channels     []string          `json:"channels" enums:"email,sms,push,device"`
	Contact      contactRequest    `json:"contact"`
	Inventory    *inventoryRequest `json:"inventory"`
}

type inventoryResponse struct {
	Quantity        float64         `json:"quantity"`
	DoseAmount      float64         `json:"dose_amount"`
	RefillThreshold float64         `json:"refill_threshold"`
	Status          InventoryStatus `json:"status"`
}

// medicationResponse representa una medicación registrada.
type medicationResponse struct {
	ID           string             `json:"id"`
	OwnerUserID  string             `json:"owner_user_id"`
	Name         string             `json:"name"`
	Dosage       string             `json:"dosage"`
	Instructions string             `json:"instructions"`
	Frequency    frequency.Tag      `json:"frequency"`
	Hours        float64            `json:"hours,omitempty"`
	Times        []string           `json:"times,omitempty"`
	Timezone     string             `json:"timezone"`
	Channels     []notify.Channel   `json:"channels"`
	Contact      contactRequest     `json:"contact"`
	Inventory    *inventoryResponse `json:"inventory,omitempty"`
	Revision     int64              `json:"revision"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type slotResponse struct {
	ID             string     `json:"id"`
	MedicationID   string     `json:"medication_id"`
	TimeOfDay      string     `json:"time_of_day,omitempty"` // vacío = rolling
	Status         SlotStatus `json:"status"`
	Taken          bool       `json:"taken"`
	LastTakenAt    *time.Time `json:"last_taken_at,omitempty"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"` // horario del dose pendiente
	NextReminderAt *time.Time `json:"next_reminder_at,omitempty"`
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty"`
}

type createMedicationResponse struct {
	Medication medicationResponse `json:"medication"`
	Slots      []slotResponse     `json:"slots"`
}

type doseEventResponse struct {
	ID           string     `json:"id"`
	MedicationID string     `json:"medication_id"`
	SlotID       string     `json:"slot_id"`
	Action       Action     `json:"action"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	ActualAt     *time.Time `json:"actual_at,omitempty"`
	Quantity     float64    `json:"quantity,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	DelayHours   float64    `json:"delay_hours,omitempty"`
	RecordedAt   time.Time  `json:"recorded_at"`
}

type streakResponse struct {
	MedicationID  string     `json:"medication_id"`
	Current       int        `json:"current"`
	Longest       int        `json:"longest"`
	LastTaken     *time.Time `json:"last_taken,omitempty"`
	Taken         int        `json:"taken"`
	Skipped       int        `json:"skipped"`
	Missed        int        `json:"missed"`
	AdherenceRate float64    `json:"adherence_rate"`
	// Consistent es false si el streak guardado no coincide con el replay del historial.
	Consistent bool `json:"consistent"`
}

type deliveryResponse struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notification_id"`
	EventID        string         `json:"event_id,omitempty"`
	Kind           notify.Kind    `json:"kind"`
	Channel        notify.Channel `json:"channel"`
	OK             bool           `json:"ok"`
	Error          string         `json:"error,omitempty"`
	AttemptedAt    time.Time      `json:"attempted_at"`
}

// createMedicationHandler godoc
// @Summary Registrar medicación
// @Description Registra una medicación con su frecuencia y genera los slots iniciales. El primer recordatorio queda calculado. Autenticación: `X-Debug-User-ID` (dev) o `Authorization: Bearer <token>` (prod).
// @Tags medications
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param payload body createMedicationRequest true "Datos de la medicación"
// @Success 201 {object} createMedicationResponse
// @Failure 400 {string} string "invalid json / frecuencia inválida / reglas de negocio"
// @Failure 401 {string} string "unauthorized"
// @Router /medications [post]
func createMedicationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createMedicationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		var first *time.Time
		if strings.TrimSpace(req.FirstDoseAt) != "" {
			t, err := time.Parse(time.RFC3339, req.FirstDoseAt)
			if err != nil {
				http.Error(w, "first_dose_at must be RFC3339", http.StatusBadRequest)
				return
			}
			first = &t
		}

		in := CreateInput{
			Name:         req.Name,
			Dosage:       req.Dosage,
			Instructions: req.Instructions,
			Frequency:    req.Frequency,
			Hours:        req.Hours,
			Times:        req.Times,
			Timezone:     firstNonEmpty(req.Timezone, claims.Timezone),
			FirstDoseAt:  first,
			Channels:     req.Channels,
			// el perfil completa lo que no venga en el request
			Contact: Contact{
				Email:    firstNonEmpty(req.Contact.Email, claims.Email),
				Phone:    firstNonEmpty(req.Contact.Phone, claims.Phone),
				DeviceID: req.Contact.DeviceID,
			},
		}
		if req.Inventory != nil {
			in.Inventory = &InventoryInput{
				Quantity:        req.Inventory.Quantity,
				DoseAmount:      req.Inventory.DoseAmount,
				RefillThreshold: req.Inventory.RefillThreshold,
			}
		}

		m, slots, err := svc.Create(r.Context(), claims.UserID, in)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeJSON(w, http.StatusCreated, createMedicationResponse{
			Medication: toMedicationResponse(m),
			Slots:      toSlotResponses(slots),
		})
	}
}

// listMedicationsHandler godoc
// @Summary Listar mis medicaciones
// @Tags medications
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Success 200 {array} medicationResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 500 {string} string "internal error"
// @Router /medications [get]
func listMedicationsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		items, err := svc.ListByOwner(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]medicationResponse, 0, len(items))
		for _, m := range items {
			out = append(out, toMedicationResponse(m))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// getMedicationHandler godoc
// @Summary Obtener medicación
// @Tags medications
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param medicationID path string true "ID de la medicación"
// @Success 200 {object} medicationResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found"
// @Router /medications/{medicationID} [get]
func getMedicationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := AuthorizeOwner(w, r, svc)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toMedicationResponse(m))
	}
}

// deleteMedicationHandler godoc
// @Summary Eliminar medicación
// @Description Elimina la medicación junto con sus slots, streak e historial. Solo el dueño.
// @Tags medications
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param medicationID path string true "ID de la medicación"
// @Success 204 {string} string ""
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found"
// @Failure 500 {string} string "internal error"
// @Router /medications/{medicationID} [delete]
func deleteMedicationHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := AuthorizeOwner(w, r, svc)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), m.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				http.Error(w, "medication not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// listSlotsHandler godoc
// @Summary Listar slots de la medicación
// @Description Devuelve los slots del schedule. Solo uno tiene next_reminder_at.
// @Tags medications
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param medicationID path string true "ID de la medicación"
// @Success 200 {array} slotResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found"
// @Router /medications/{medicationID}/slots [get]
func listSlotsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := AuthorizeOwner(w, r, svc)
		if !ok {
			return
		}
		st, err := svc.State(r.Context(), m.ID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(st.Slots))
	}
}

// listDoseEventsHandler godoc
// @Summary Historial de doses
// @Description Lista el log append-only de eventos (taken, skipped, missed, delayed), más reciente primero.
// @Tags medications
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param medicationID path string true "ID de la medicación"
// @Param limit query int false "Máximo de eventos a devolver (1-500). Por defecto 100"
// @Param actions query string false "CSV de acciones (ej: taken,missed)"
// @Param from query string false "scheduled_at mínimo (RFC3339)"
// @Param to query string false "scheduled_at máximo (RFC3339)"
// @Success 200 {array} doseEventResponse
// @Failure 400 {string} string "Parámetros de filtro inválidos"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found"
// @Router /medications/{medicationID}/events [get]
func listDoseEventsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := AuthorizeOwner(w, r, svc)
		if !ok {
			return
		}

		filter, err := parseEventFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		items, err := svc.History(r.Context(), m.ID, filter)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]doseEventResponse, 0, len(items))
		for _, e := range items {
			out = append(out, toDoseEventResponse(e))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// getStreakHandler godoc
// @Summary Streak de adherencia
// @Tags medications
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param medicationID path string true "ID de la medicación"
// @Success 200 {object} streakResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found"
// @Router /medications/{medicationID}/streak [get]
func getStreakHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := AuthorizeOwner(w, r, svc)
		if !ok {
			return
		}

		stored, replayed, err := svc.VerifyStreak(r.Context(), m.ID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, streakResponse{
			MedicationID:  m.ID,
			Current:       stored.Current,
			Longest:       stored.Longest,
			LastTaken:     stored.LastTaken,
			Taken:         stored.TakenCount,
			Skipped:       stored.SkippedCount,
			Missed:        stored.MissedCount,
			AdherenceRate: stored.AdherenceRate(),
			Consistent:    stored.Current == replayed.Current && stored.Longest == replayed.Longest,
		})
	}
}

// listDeliveriesHandler godoc
// @Summary Entregas de notificaciones
// @Description Resultado por canal de cada notificación despachada para la medicación.
// @Tags medications
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param medicationID path string true "ID de la medicación"
// @Param limit query int false "Máximo a devolver (1-500). Por defecto 100"
// @Success 200 {array} deliveryResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found"
// @Router /medications/{medicationID}/deliveries [get]
func listDeliveriesHandler(svc *Service, deliveries notify.DeliveryRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := AuthorizeOwner(w, r, svc)
		if !ok {
			return
		}

		out := make([]deliveryResponse, 0)
		if deliveries == nil {
			writeJSON(w, http.StatusOK, out)
			return
		}

		items, err := deliveries.ListByMedication(r.Context(), m.ID, parseLimit(r, 100, 500))
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		for _, d := range items {
			out = append(out, deliveryResponse{
				ID:             d.ID,
				NotificationID: d.NotificationID,
				EventID:        d.EventID,
				Kind:           d.Kind,
				Channel:        d.Channel,
				OK:             d.OK,
				Error:          d.Error,
				AttemptedAt:    d.AttemptedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// AuthorizeOwner resuelve claims + medicación y escribe el error si corresponde.
// Las medicaciones no se comparten: solo el dueño. Lo usan también las transiciones.
func AuthorizeOwner(w http.ResponseWriter, r *http.Request, svc *Service) (Medication, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return Medication{}, false
	}

	m, err := svc.GetByID(r.Context(), chi.URLParam(r, "medicationID"))
	if err != nil {
		http.Error(w, "medication not found", http.StatusNotFound)
		return Medication{}, false
	}
	if m.OwnerUserID != claims.UserID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return Medication{}, false
	}
	return m, true
}

func parseLimit(r *http.Request, def, max int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}

func parseEventFilter(r *http.Request) (EventFilter, error) {
	filter := EventFilter{Limit: parseLimit(r, 100, 500)}

	// actions=taken,missed
	if v := strings.TrimSpace(r.URL.Query().Get("actions")); v != "" {
		for _, p := range strings.Split(v, ",") {
			a := Action(strings.ToLower(strings.TrimSpace(p)))
			switch a {
			case ActionTaken, ActionSkipped, ActionMissed, ActionDelayed:
				filter.Actions = append(filter.Actions, a)
			case "":
			default:
				return EventFilter{}, errors.New("unknown action " + string(a))
			}
		}
	}

	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return EventFilter{}, errors.New("from must be RFC3339")
		}
		filter.From = &t
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return EventFilter{}, errors.New("to must be RFC3339")
		}
		filter.To = &t
	}

	return filter, nil
}

func toMedicationResponse(m Medication) medicationResponse {
	out := medicationResponse{
		ID:           m.ID,
		OwnerUserID:  m.OwnerUserID,
		Name:         m.Name,
		Dosage:       m.Dosage,
		Instructions: m.Instructions,
		Frequency:    m.Frequency.Tag,
		Hours:        m.Frequency.Hours,
		Times:        m.Frequency.Times,
		Timezone:     m.Timezone,
		Channels:     m.Channels,
		Contact: contactRequest{
			Email:    m.Contact.Email,
			Phone:    m.Contact.Phone,
			DeviceID: m.Contact.DeviceID,
		},
		Revision:  m.Revision,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if out.Channels == nil {
		out.Channels = []notify.Channel{}
	}
	if m.Inventory != nil {
		out.Inventory = &inventoryResponse{
			Quantity:        m.Inventory.Quantity,
			DoseAmount:      m.Inventory.DoseAmount,
			RefillThreshold: m.Inventory.RefillThreshold,
			Status:          m.Inventory.Status(),
		}
	}
	return out
}

func toSlotResponses(slots []Slot) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		sr := slotResponse{
			ID:             s.ID,
			MedicationID:   s.MedicationID,
			Status:         s.Status,
			Taken:          s.Taken,
			LastTakenAt:    s.LastTakenAt,
			ScheduledAt:    s.ScheduledAt,
			NextReminderAt: s.NextReminderAt,
			LastNotifiedAt: s.LastNotifiedAt,
		}
		if s.TimeOfDay != nil {
			sr.TimeOfDay = s.TimeOfDay.String()
		}
		out = append(out, sr)
	}
	return out
}

func toDoseEventResponse(e DoseEvent) doseEventResponse {
	return doseEventResponse{
		ID:           e.ID,
		MedicationID: e.MedicationID,
		SlotID:       e.SlotID,
		Action:       e.Action,
		ScheduledAt:  e.ScheduledAt,
		ActualAt:     e.ActualAt,
		Quantity:     e.Quantity,
		Reason:       e.Reason,
		DelayHours:   e.Delay.Hours(),
		RecordedAt:   e.RecordedAt,
	}
}

// writeJSON está duplicado a propósito en cada módulo (medications/transitions).
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
