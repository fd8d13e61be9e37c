package carebook

import (
	"context"
	"time"

	"github.com/MrEthical07/carebook/permission"
)

// Role is the access level stored on a credential and embedded in session
// tokens.
type Role string

const (
	RoleUser      Role = permission.RoleUser
	RoleCounselor Role = permission.RoleCounselor
	RoleAdmin     Role = permission.RoleAdmin
)

// Valid reports whether r is one of the practice roles.
func (r Role) Valid() bool {
	return permission.ValidRole(string(r))
}

// Credential is the stored account. Email is lower-cased and unique.
// PasswordHash is empty for passwordless accounts; VerifiedAt is zero until
// the first successful OTP or magic-link verification.
type Credential struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	Role         Role
	PasswordHash string
	Image        string
	VerifiedAt   time.Time
	CreatedAt    time.Time
}

// CredentialStore persists credentials. Implementations return
// ErrUserNotFound for missing records and ErrAccountExists when Create hits a
// taken email. MarkVerified reports true only for the call that set the
// timestamp.
type CredentialStore interface {
	GetByEmail(ctx context.Context, email string) (*Credential, error)
	GetByID(ctx context.Context, id string) (*Credential, error)
	Create(ctx context.Context, c Credential) (*Credential, error)
	MarkVerified(ctx context.Context, id string, at time.Time) (bool, error)
	SetRole(ctx context.Context, id string, role Role) error
	SetPasswordHash(ctx context.Context, id, hash string) error
}

// Email templates rendered by the gateway.
const (
	TemplateOTP       = "otp"
	TemplateMagicLink = "magic_link"
	TemplateWelcome   = "welcome"
)

// EmailGateway delivers templated mail. data keys depend on the template:
// "code" and "expiresInMinutes" for otp, "link" and "expiresInMinutes" for
// magic_link, "name" for welcome.
type EmailGateway interface {
	Send(ctx context.Context, to, template string, data map[string]string) error
}

// User is the public projection of a credential. It never carries the
// password hash.
type User struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Phone    string    `json:"phone"`
	Role     Role      `json:"role"`
	Image    string    `json:"image,omitempty"`
	Verified bool      `json:"verified"`
	Created  time.Time `json:"createdAt"`
}

// AuthResult is returned by every successful sign-in path.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// IssueResult is returned by code and link requests. It never reveals the
// code, the token, or whether the account existed.
type IssueResult struct {
	Message   string
	ExpiresIn time.Duration
}

// SignupRequest carries explicit password signup input.
type SignupRequest struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// Claims is the verified content of a session token.
type Claims struct {
	UserID    string
	Email     string
	Role      Role
	ExpiresAt time.Time
}

func publicUser(c *Credential) User {
	return User{
		ID:       c.ID,
		Name:     c.Name,
		Email:    c.Email,
		Phone:    c.Phone,
		Role:     c.Role,
		Image:    c.Image,
		Verified: !c.VerifiedAt.IsZero(),
		Created:  c.CreatedAt,
	}
}
