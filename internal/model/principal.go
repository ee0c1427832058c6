package model

// Role is the caller role supplied by the identity collaborator.
type Role string

const (
	RoleStudent Role = "student"
	RoleProctor Role = "proctor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleProctor || r == RoleAdmin
}

// Principal is the verified (subject, role) pair behind a request.
type Principal struct {
	SubjectID string `json:"subject_id"`
	Role      Role   `json:"role"`
}

// IsStaff reports whether the principal may oversee other students' attempts.
func (p Principal) IsStaff() bool {
	return p.Role == RoleProctor || p.Role == RoleAdmin
}
