package permission

// Role names stored on credentials and embedded in session tokens.
const (
	RoleUser      = "user"
	RoleCounselor = "counselor"
	RoleAdmin     = "admin"
)

// Practice permissions gated by the HTTP layer.
const (
	ProfileRead        = "profile.read"
	ProfileWrite       = "profile.write"
	AppointmentBook    = "appointment.book"
	AppointmentViewOwn = "appointment.view_own"
	AppointmentManage  = "appointment.manage"
	AvailabilityManage = "availability.manage"
	ClientManage       = "client.manage"
	CounselorManage    = "counselor.manage"
	RoleManage         = "role.manage"
)

var practicePermissions = []string{
	ProfileRead,
	ProfileWrite,
	AppointmentBook,
	AppointmentViewOwn,
	AppointmentManage,
	AvailabilityManage,
	ClientManage,
	CounselorManage,
	RoleManage,
}

var practiceRoles = map[string][]string{
	RoleUser: {
		ProfileRead, ProfileWrite, AppointmentBook, AppointmentViewOwn,
	},
	RoleCounselor: {
		ProfileRead, ProfileWrite, AppointmentViewOwn, AppointmentManage, AvailabilityManage,
	},
	RoleAdmin: practicePermissions,
}

// NewPracticeRoles returns a frozen RoleManager holding the user, counselor
// and admin roles of the practice.
func NewPracticeRoles() (*RoleManager, error) {
	registry := NewRegistry()
	for _, p := range practicePermissions {
		if _, err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	rm := NewRoleManager(registry)
	for _, role := range []string{RoleUser, RoleCounselor, RoleAdmin} {
		if err := rm.RegisterRole(role, practiceRoles[role]); err != nil {
			return nil, err
		}
	}
	rm.Freeze()
	return rm, nil
}

// ValidRole reports whether role is one of the practice roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleCounselor, RoleAdmin:
		return true
	}
	return false
}
