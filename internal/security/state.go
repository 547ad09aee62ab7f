package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// OAuth state blobs bind a provider callback to the request that started
// it. They are signed JWTs (HS256) carrying the flow purpose, the client
// platform and, for link flows, the initiating user. Signature or claim
// failure is terminal for the callback.

var ErrInvalidState = errors.New("invalid oauth state")

const stateTTL = 10 * time.Minute

type StatePayload struct {
	Purpose        string
	ClientPlatform string
	RedirectURI    string
	UserID         string
}

type stateClaims struct {
	Purpose        string `json:"purpose"`
	ClientPlatform string `json:"client"`
	RedirectURI    string `json:"redirect_uri,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Nonce          string `json:"nonce"`
	jwt.RegisteredClaims
}

type StateSigner struct {
	secret []byte
}

func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{secret: []byte(secret)}
}

func (s *StateSigner) Sign(payload StatePayload) (string, error) {
	now := time.Now()
	claims := stateClaims{
		Purpose:        payload.Purpose,
		ClientPlatform: payload.ClientPlatform,
		RedirectURI:    payload.RedirectURI,
		UserID:         payload.UserID,
		Nonce:          uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse checks the signature and expiry and returns the payload. The
// caller dispatches on Purpose; providers echo only the state back, so
// the blob itself is the single source of truth for which flow is
// finishing. All failure modes collapse into ErrInvalidState.
func (s *StateSigner) Parse(state string) (StatePayload, error) {
	var claims stateClaims
	token, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidState
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return StatePayload{}, ErrInvalidState
	}
	if claims.Purpose == "" || claims.ClientPlatform == "" {
		return StatePayload{}, ErrInvalidState
	}
	return StatePayload{
		Purpose:        claims.Purpose,
		ClientPlatform: claims.ClientPlatform,
		RedirectURI:    claims.RedirectURI,
		UserID:         claims.UserID,
	}, nil
}

// Validate is Parse plus a purpose check, for callers that only ever
// accept one flow.
func (s *StateSigner) Validate(state, purpose string) (StatePayload, error) {
	payload, err := s.Parse(state)
	if err != nil {
		return StatePayload{}, err
	}
	if payload.Purpose != purpose {
		return StatePayload{}, ErrInvalidState
	}
	return payload, nil
}
