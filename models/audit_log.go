package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionTokenIssued          AuditAction = "jwt_generated"
	AuditActionTokenRejected        AuditAction = "jwt_verification_failed"
	AuditActionUnauthorizedAccess   AuditAction = "unauthorized_access"
	AuditActionPermissionDenied     AuditAction = "permission_denied"
	AuditActionRoleDenied           AuditAction = "role_denied"
	AuditActionLoginSuccess         AuditAction = "login_success"
	AuditActionLoginFailed          AuditAction = "login_failed"
	AuditActionLogout               AuditAction = "user_logout"
	AuditActionUserCreated          AuditAction = "user_created"
	AuditActionUserUpdated          AuditAction = "user_updated"
	AuditActionUserDeleted          AuditAction = "user_deleted"
	AuditActionPermissionsUpdated   AuditAction = "permissions_updated"
	AuditActionPasswordChanged      AuditAction = "password_changed"
	AuditActionCredentialsStored    AuditAction = "credentials_stored"
	AuditActionCredentialsDeleted   AuditAction = "credentials_deleted"
	AuditActionCredentialsRetrieved AuditAction = "credentials_retrieved"
	AuditActionCredentialCacheClear AuditAction = "credential_cache_cleared"
	AuditActionDashboardAccess      AuditAction = "dashboard_access"
	AuditActionDashboardResponse    AuditAction = "dashboard_response"
	AuditActionDashboardError       AuditAction = "dashboard_error"
	AuditActionProviderFetchFailed  AuditAction = "provider_fetch_failed"
	AuditActionServerError          AuditAction = "server_error"
	AuditActionSystemStartup        AuditAction = "system_startup"
)

// SystemActor is the user id recorded for events with no principal
const SystemActor = "system"

// AuditEvent is one line of the append-only audit log. The JSON shape is
// stable; readers must ignore fields they do not know.
type AuditEvent struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"userId"`
	Action    AuditAction            `json:"action"`
	Details   map[string]interface{} `json:"details"`
	IPAddress string                 `json:"ip"`
	RequestID string                 `json:"requestId,omitempty"`
}

// NewAuditEvent creates a new AuditEvent instance
func NewAuditEvent(action AuditAction, userID string) *AuditEvent {
	if userID == "" {
		userID = SystemActor
	}
	return &AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Action:    action,
		Details:   map[string]interface{}{},
		IPAddress: "unknown",
	}
}

// WithDetails merges details into the event
func (e *AuditEvent) WithDetails(details map[string]interface{}) *AuditEvent {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithRequest sets request metadata
func (e *AuditEvent) WithRequest(requestID, ipAddress string) *AuditEvent {
	e.RequestID = requestID
	if ipAddress != "" {
		e.IPAddress = ipAddress
	}
	return e
}

// AccessLogEntry is one line of the access log
type AccessLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Status    int       `json:"status"`
	Duration  string    `json:"duration"`
	IPAddress string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	RequestID string    `json:"requestId,omitempty"`
}
