package dto

import "passionautos/internal/chat"

// UserProfile is returned by /auth/me.
type UserProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// AuthResponse bundles a profile with its bearer token.
type AuthResponse struct {
	User  UserProfile `json:"user"`
	Token string      `json:"token"`
}

func NewUserProfile(u chat.UserAccount) UserProfile {
	return UserProfile{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

func NewAuthResponse(u chat.UserAccount, token string) AuthResponse {
	return AuthResponse{User: NewUserProfile(u), Token: token}
}
