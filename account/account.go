// Package account defines the closed set of account kinds served by the
// marketplace API and the per-kind endpoint surface each kind talks to.
package account

import "encoding/json"

// Kind identifies which side of the marketplace an account belongs to.
type Kind string

const (
	// KindJobSeeker is a worker applying to event shifts.
	KindJobSeeker Kind = "job_seeker"
	// KindClient is a client company posting event jobs.
	KindClient Kind = "client"
)

// Kinds lists every valid account kind.
func Kinds() []Kind {
	return []Kind{KindJobSeeker, KindClient}
}

// Valid reports whether k is a member of the closed kind set.
func (k Kind) Valid() bool {
	switch k {
	case KindJobSeeker, KindClient:
		return true
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// Endpoints holds the API paths used for one account kind. Each kind has its
// own authentication and profile surface on the backend; routing decisions
// live in this table and nowhere else.
type Endpoints struct {
	Login          string
	Register       string
	Me             string
	Profile        string
	ForgotPassword string
}

var endpoints = map[Kind]Endpoints{
	KindJobSeeker: {
		Login:          "/api/seekers/mobile/login",
		Register:       "/api/seekers/mobile/register",
		Me:             "/api/seekers/me",
		Profile:        "/api/seekers/profile",
		ForgotPassword: "/api/seekers/forgot-password",
	},
	KindClient: {
		Login:          "/api/clients/mobile/login",
		Register:       "/api/clients/mobile/register",
		Me:             "/api/clients/me",
		Profile:        "/api/clients/profile",
		ForgotPassword: "/api/clients/forgot-password",
	},
}

// EndpointsFor returns the endpoint set for the given kind. The second return
// is false for kinds outside the closed set.
func EndpointsFor(kind Kind) (Endpoints, bool) {
	e, ok := endpoints[kind]
	return e, ok
}

// Profile is the last-known server-side record for an account. The backend
// owns the full shape; the client keeps it as an opaque JSON document plus the
// couple of fields the access layer itself needs.
type Profile struct {
	ID    json.Number     `json:"id"`
	Email string          `json:"email"`
	Name  string          `json:"name,omitempty"`
	Raw   json.RawMessage `json:"-"`
}

// ParseProfile decodes a profile document, keeping the raw bytes alongside
// the decoded fields so nothing the server sent is lost on re-persist.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	p.Raw = append([]byte(nil), data...)
	return &p, nil
}

// MarshalProfile encodes a profile for persistence. The raw server document
// wins when present; otherwise the decoded fields are re-encoded.
func MarshalProfile(p *Profile) ([]byte, error) {
	if len(p.Raw) > 0 {
		return append([]byte(nil), p.Raw...), nil
	}
	return json.Marshal(p)
}
