package model

// VerifyPinRequest is the payload for PIN sign-in.
type VerifyPinRequest struct {
	PIN string `json:"pin" binding:"required,pin4"`
}

// Session is returned after sign-in and by the session endpoint.
type Session struct {
	Token     string `json:"token,omitempty"`
	UserID    string `json:"user_id"`
	Role      Role   `json:"role"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ExpiresAt int64  `json:"expires_at"`
}
