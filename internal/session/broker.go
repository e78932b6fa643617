// internal/session/broker.go
package session

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for tokens that are malformed, forged, revoked,
// superseded, or already consumed.
var ErrInvalidToken = errors.New("session: invalid token")

// Broker issues and resolves reconnection tokens. A token binds
// (roomCode, playerID) at issuance; exactly one token per player is valid at
// a time, and resolving one consumes it. The caller is expected to issue a
// fresh token to the reconnected client immediately after.
//
// Tokens are EdDSA-signed JWTs over a keypair generated at startup, so a
// token is unguessable and self-describing, but the per-player currency check
// below is what actually gates reuse.
type Broker struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	mu sync.Mutex
	// current maps playerID -> the jti of that player's sole valid token.
	current map[uuid.UUID]string
}

// NewBroker generates a fresh ed25519 keypair. Tokens do not survive a
// process restart; neither do the rooms they point at.
func NewBroker() (*Broker, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("session: generate keypair: %w", err)
	}
	return &Broker{
		privateKey: priv,
		publicKey:  pub,
		current:    make(map[uuid.UUID]string),
	}, nil
}

// Issue signs a token for (roomCode, playerID) and records it as the player's
// single valid token, superseding any prior one.
func (b *Broker) Issue(roomCode string, playerID uuid.UUID) (string, error) {
	jti := uuid.NewString()
	claims := jwt.MapClaims{
		"sub":  playerID.String(),
		"room": roomCode,
		"jti":  jti,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(b.privateKey)
	if err != nil {
		return "", fmt.Errorf("session: sign token: %w", err)
	}

	b.mu.Lock()
	b.current[playerID] = jti
	b.mu.Unlock()
	return token, nil
}

// Resolve verifies a token and consumes it, returning the bound room code and
// player identity. A second Resolve of the same token fails with
// ErrInvalidToken.
func (b *Broker) Resolve(token string) (string, uuid.UUID, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return b.publicKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", uuid.Nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", uuid.Nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	roomCode, _ := claims["room"].(string)
	jti, _ := claims["jti"].(string)
	playerID, err := uuid.Parse(sub)
	if err != nil || roomCode == "" || jti == "" {
		return "", uuid.Nil, ErrInvalidToken
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current[playerID] != jti {
		return "", uuid.Nil, ErrInvalidToken
	}
	delete(b.current, playerID)
	return roomCode, playerID, nil
}

// Revoke drops the player's outstanding token, if any. Called on explicit
// leave and on room reclamation.
func (b *Broker) Revoke(playerID uuid.UUID) {
	b.mu.Lock()
	delete(b.current, playerID)
	b.mu.Unlock()
}
