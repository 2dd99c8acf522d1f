package capabilities

import "context"

// CapabilitiesResolver responde si un usuario tiene una capability de su plan
// (p.ej. "notifications:sms").
type CapabilitiesResolver interface {
	Has(ctx context.Context, userID string, capability string) (bool, error)
}
