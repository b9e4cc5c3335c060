package enums

// AuditSpecialType flags audit records that do not come from a plain movement
// application.
type AuditSpecialType string

const (
	AuditRegular     AuditSpecialType = ""
	AuditApproval    AuditSpecialType = "APPROVAL"
	AuditRejection   AuditSpecialType = "REJECTION"
	AuditPending     AuditSpecialType = "PENDING_APPROVAL"
	AuditReversal    AuditSpecialType = "REVERSAL"
	AuditReservation AuditSpecialType = "RESERVATION"
)
