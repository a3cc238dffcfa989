package models

// Profile is a player's identity inside a room. ID is empty until onboarding completes.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarRef string `json:"avatar_ref"`
}
