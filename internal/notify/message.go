package notify

import (
	"fmt"
	"strings"
	"time"
)

// Subject y Body son los textos comunes a email/sms/push.
func Subject(n Notification) string {
	switch n.Kind {
	case KindDoseDue:
		return fmt.Sprintf("Time to take %s", n.MedicationName)
	case KindLowSupply:
		if n.InventoryStatus == "depleted" {
			return fmt.Sprintf("%s is out of stock", n.MedicationName)
		}
		return fmt.Sprintf("%s is running low", n.MedicationName)
	default:
		return fmt.Sprintf("%s: dose %s", n.MedicationName, n.Action)
	}
}

func Body(n Notification) string {
	var b strings.Builder
	switch n.Kind {
	case KindDoseDue:
		fmt.Fprintf(&b, "Reminder: take %s", n.MedicationName)
		if n.Dosage != "" {
			fmt.Fprintf(&b, " (%s)", n.Dosage)
		}
		if !n.ScheduledAt.IsZero() {
			fmt.Fprintf(&b, ", scheduled for %s", n.ScheduledAt.Format("15:04"))
		}
		b.WriteString(".")
	case KindLowSupply:
		fmt.Fprintf(&b, "%s: %g left (%s). Time to refill.", n.MedicationName, n.Quantity, strings.ReplaceAll(n.InventoryStatus, "_", " "))
	default:
		fmt.Fprintf(&b, "%s dose %s", n.MedicationName, n.Action)
		if !n.ScheduledAt.IsZero() {
			fmt.Fprintf(&b, " (scheduled %s)", n.ScheduledAt.Format(time.RFC3339))
		}
		b.WriteString(".")
		if n.NextReminderAt != nil {
			fmt.Fprintf(&b, " Next reminder at %s.", n.NextReminderAt.Format(time.RFC3339))
		}
	}
	return b.String()
}
