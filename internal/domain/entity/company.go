package entity

import "time"

// Company es el emisor de comprobantes: identidad fiscal, credenciales SOL y
// material de firma. El núcleo de facturación solo la lee.
type Company struct {
	ID           int64
	RUC          string // 11 dígitos
	Denomination string // Razón social
	Address      string
	Email        string

	// Ambiente SUNAT: BETA o PRODUCTION. Decide endpoint y credenciales.
	Environment string

	// Credenciales SOL (solo producción; en BETA se usan las fijas MODDATOS).
	SunatUsername string
	SunatPassword string

	// Rutas del certificado y llave privada PEM, o un único .p12/.pfx.
	CertPath     string
	CertKeyPath  string
	CertPassword string

	BillingEnabled bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
