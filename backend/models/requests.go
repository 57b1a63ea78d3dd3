package models

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResponse carries the token for clients that cannot use the cookie.
type SignInResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	User      any    `json:"user"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type PasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type PhoneVisibilityRequest struct {
	Visible bool `json:"isPhoneNumberVisible"`
}

type OpenChatRequest struct {
	UserID string `json:"userId"`
}

type MessageRequest struct {
	Text string `json:"text"`
}

// Count reports how many rows a bulk action touched.
type Count struct {
	Count int `json:"count"`
}
