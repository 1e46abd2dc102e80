package auth

// ValidateTokenRequest asks for validation of one access token.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateTokenResponse reports the outcome and the token's identity
// claims when valid.
type ValidateTokenResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Error  string `json:"error,omitempty"`
}
