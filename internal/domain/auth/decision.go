package auth

import "fmt"

const (
	// LoginPath is where unauthenticated or unverifiable navigations are sent.
	LoginPath = "/auth"
	// HomePath is where authenticated users lacking the role are sent.
	HomePath = "/"
)

// RequiredRole names the access level a route demands.
type RequiredRole string

const (
	// RequireAdmin demands an admin role.
	RequireAdmin RequiredRole = "admin"
	// RequireAuthenticated demands any signed-in user.
	RequireAuthenticated RequiredRole = "authenticated"
)

// Decision is the outcome of a navigation check: allow, or redirect to a target.
type Decision struct {
	Allowed    bool   `json:"allowed"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// Allow lets the navigation proceed.
func Allow() Decision { return Decision{Allowed: true} }

// Redirect sends the navigation to target.
func Redirect(target string) Decision { return Decision{RedirectTo: target} }

func (d Decision) String() string {
	if d.Allowed {
		return "Allow"
	}
	return fmt.Sprintf("Redirect(%q)", d.RedirectTo)
}
