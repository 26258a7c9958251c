package models

// AuditLog is an append-only record of a mutating ledger operation. Changes
// holds a JSON object of the request fields that matter for review, with
// encrypted shareholder fields redacted.
type AuditLog struct {
	Base
	CoopID       string `gorm:"type:uuid;not null;index" json:"coop_id"`
	Actor        string `gorm:"not null;index" json:"actor"`
	Action       string `gorm:"not null" json:"action"`
	ResourceType string `gorm:"not null;index:idx_audit_logs_resource,priority:1" json:"resource_type"`
	ResourceID   string `gorm:"index:idx_audit_logs_resource,priority:2" json:"resource_id"`
	IPAddress    string `json:"ip_address,omitempty"`
	Changes      string `json:"changes,omitempty"`
}
