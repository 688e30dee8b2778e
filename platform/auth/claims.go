package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role is the staff/student role encoded in credentials.
type Role string

const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"
	RoleSchoolAdmin Role = "SCHOOL_ADMIN"
	RoleProfessor   Role = "PROFESSOR"
	RoleStudent     Role = "STUDENT"
)

// CanSimulate reports whether the role is allowed to open a simulation
// session on a student account.
func (r Role) CanSimulate() bool {
	switch r {
	case RoleSuperAdmin, RoleSchoolAdmin, RoleProfessor:
		return true
	default:
		return false
	}
}

// TokenType distinguishes access from refresh tokens; refresh tokens are
// only accepted on the refresh endpoint.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the authorization payload transmitted via JWT. A simulation
// credential is shaped exactly like a student credential plus the simulation
// fields, so student-facing business logic runs unmodified; the write guard
// is the enforcement boundary.
type Claims struct {
	jwt.RegisteredClaims
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Role      Role      `json:"role,omitempty"`
	TenantID  string    `json:"tenant_id,omitempty"`
	TokenType TokenType `json:"token_type,omitempty"`

	IsSimulation        bool   `json:"is_simulation,omitempty"`
	SimulationSessionID string `json:"simulation_session_id,omitempty"`
	SimulationMode      string `json:"simulation_mode,omitempty"`
	OriginalUserID      string `json:"original_user_id,omitempty"`
	OriginalUserRole    Role   `json:"original_user_role,omitempty"`
}

// TokenPair is the credential pair returned by login, refresh, and the
// simulation start/end transitions.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}
