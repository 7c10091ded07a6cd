package grantkit

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// AuthAuditLog records every authorization mutation for compliance and
// debugging.
type AuthAuditLog struct {
	bun.BaseModel `bun:"table:auth_audit_log,alias:aal"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Timestamp time.Time `bun:"timestamp,notnull,default:current_timestamp"`

	// Who performed the action (role name of the session's active role,
	// or "bootstrap" for system-issued rows).
	ActorID string `bun:"actor_id,notnull"`

	// What action was performed.
	Action string `bun:"action,notnull"`

	// Target of the action.
	TargetRole string `bun:"target_role"`
	MemberRole string `bun:"member_role"`
	Object     string `bun:"object"`
	Privilege  string `bun:"privilege"`
	Grantee    string `bun:"grantee"`
	Scope      string `bun:"scope"`

	// Context: state around the change and non-fatal diagnostics.
	PreviousState string   `bun:"previous_state"`
	NewState      string   `bun:"new_state"`
	Warnings      []string `bun:"warnings,type:text[]"`

	// Request metadata for forensics.
	IPAddress string `bun:"ip_address"`
	UserAgent string `bun:"user_agent"`
	RequestID string `bun:"request_id"`
}

// AuditAction represents the type of action in the audit log.
type AuditAction string

const (
	AuditActionCreateRole       AuditAction = "create-role"
	AuditActionAlterRole        AuditAction = "alter-role"
	AuditActionRenameRole       AuditAction = "rename-role"
	AuditActionDropRole         AuditAction = "drop-role"
	AuditActionSetConfig        AuditAction = "set-role-config"
	AuditActionResetConfig      AuditAction = "reset-role-config"
	AuditActionReassignOwned    AuditAction = "reassign-owned"
	AuditActionDropOwned        AuditAction = "drop-owned"
	AuditActionGrantMembership  AuditAction = "grant-membership"
	AuditActionRevokeMembership AuditAction = "revoke-membership"
	AuditActionGrantPrivilege   AuditAction = "grant-privilege"
	AuditActionRevokePrivilege  AuditAction = "revoke-privilege"
)

// AuditEntry is used to create new audit log entries.
type AuditEntry struct {
	ActorID       string
	Action        AuditAction
	TargetRole    string
	MemberRole    string
	Object        string
	Privilege     string
	Grantee       string
	Scope         string
	PreviousState string
	NewState      string
	Warnings      []string
	IPAddress     string
	UserAgent     string
	RequestID     string
}

// ToModel converts an AuditEntry to an AuthAuditLog model.
func (e *AuditEntry) ToModel() *AuthAuditLog {
	return &AuthAuditLog{
		ActorID:       e.ActorID,
		Action:        string(e.Action),
		TargetRole:    e.TargetRole,
		MemberRole:    e.MemberRole,
		Object:        e.Object,
		Privilege:     e.Privilege,
		Grantee:       e.Grantee,
		Scope:         e.Scope,
		PreviousState: e.PreviousState,
		NewState:      e.NewState,
		Warnings:      e.Warnings,
		IPAddress:     e.IPAddress,
		UserAgent:     e.UserAgent,
		RequestID:     e.RequestID,
		Timestamp:     time.Now(),
	}
}

// logAudit appends an audit row. Audit failures never fail the command.
func (s *Service) logAudit(ctx context.Context, cat Catalog, entry *AuditEntry) {
	ac := GetAuditContext(ctx)
	entry.IPAddress = ac.IPAddress
	entry.UserAgent = ac.UserAgent
	entry.RequestID = ac.RequestID
	_ = cat.AppendAudit(ctx, entry.ToModel())
}

// GetAuditLog retrieves audit log entries with optional filters.
func (s *Service) GetAuditLog(ctx context.Context, filter AuditLogFilter) ([]AuthAuditLog, error) {
	if filter.Limit == 0 {
		filter.Limit = 100 // Default limit
	}
	return s.cat.AuditLog(ctx, filter)
}
