package auth

// Claims es la identidad del usuario autenticado.
// Email, Phone y Timezone son defaults de contacto y zona horaria del perfil;
// la medicación puede sobreescribirlos.
type Claims struct {
	UserID   string
	Email    string
	Phone    string
	Timezone string // IANA
}
