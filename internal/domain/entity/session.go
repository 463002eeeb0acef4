package entity

// User types stored in the session
const (
	UserTypeEmployee = "Employee"
	UserTypeAdmin    = "Admin"
)

// Session is the connected user as read from session state
type Session struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

// UserEmail returns the session email, or an empty string for a missing session
func (s *Session) UserEmail() string {
	if s == nil {
		return ""
	}
	return s.Email
}

// IsEmployee returns true if the session belongs to an employee
func (s *Session) IsEmployee() bool {
	return s != nil && s.Type == UserTypeEmployee
}
