package dto

// EphemeralKeyRequest configures the minted realtime session
type EphemeralKeyRequest struct {
	Model               string `json:"model"`
	Voice               string `json:"voice"`
	ExpiresAfterSeconds int    `json:"expires_after_seconds" binding:"omitempty,gte=10,lte=3600"`
	ExpiresAfterAnchor  string `json:"expires_after_anchor"`
}

// EphemeralKeyResponse carries the short-lived key for the browser
type EphemeralKeyResponse struct {
	APIKey    string         `json:"apiKey"`
	ExpiresAt *int64         `json:"expires_at"`
	Session   map[string]any `json:"session"`
}
