package domain

import "time"

// UserRef is the identity provider's view of the signed-in user.
type UserRef struct {
	ID    string `json:"id"` // Clerk user ID (JWT subject)
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// IdentityState is what the identity provider reports about the current session.
// While IsLoaded is false the User field must not be used for any decision.
type IdentityState struct {
	User     *UserRef `json:"user,omitempty"`
	IsLoaded bool     `json:"is_loaded"`
}

// Authenticated returns the signed-in user once identity has loaded.
func (s IdentityState) Authenticated() (*UserRef, bool) {
	if !s.IsLoaded || s.User == nil || s.User.ID == "" {
		return nil, false
	}
	return s.User, true
}

// SignedIn builds a loaded identity for the given user.
func SignedIn(user UserRef) IdentityState {
	return IdentityState{User: &user, IsLoaded: true}
}

// SignedOut builds a loaded identity with no user.
func SignedOut() IdentityState {
	return IdentityState{IsLoaded: true}
}

// User represents the user record kept by the storefront.
type User struct {
	ID          string    `json:"id"`
	ClerkUserID string    `json:"clerk_user_id"`
	Name        *string   `json:"name,omitempty"`
	Email       *string   `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
