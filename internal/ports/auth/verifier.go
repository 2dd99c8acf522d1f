package auth

import "context"

// AuthVerifier resuelve un bearer token a la identidad del usuario.
// Un token inválido o vencido devuelve error; el middleware lo trata como anónimo.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
