package transport

import "encoding/json"

// Envelope is the response shape shared by every backend endpoint. `ok: false`
// implies Error carries a message fit to show the user verbatim.
type Envelope struct {
	OK           bool            `json:"ok"`
	Error        string          `json:"error,omitempty"`
	Code         string          `json:"code,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
	Token        string          `json:"token,omitempty"`
	RefreshToken string          `json:"refreshToken,omitempty"`
}
