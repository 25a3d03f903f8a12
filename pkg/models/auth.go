package models

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse carries a freshly minted token.
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// GrantAdminRequest is the body of the admin grant endpoint.
type GrantAdminRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// EntitlementResult is the outcome of a quota check.
type EntitlementResult struct {
	Allowed  bool          `json:"allowed"`
	Reason   string        `json:"reason,omitempty"`
	Tier     Tier          `json:"tier,omitempty"`
	Category LimitCategory `json:"category"`
	Used     int           `json:"used"`
	Limit    *int          `json:"limit"`
}
