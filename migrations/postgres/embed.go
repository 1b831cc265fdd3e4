// Package migrations embeds SQL migration files.
package migrations

import "embed"

// AuditFS contiene las migraciones del sink de auditoría.
//
//go:embed audit/*.sql
var AuditFS embed.FS

// AuditDir es el directorio dentro de AuditFS donde viven las migraciones.
const AuditDir = "audit"
