package realtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/reliefmesh/reliefmesh-go/internal/identity"
)

var (
	ErrTicketInvalid = errors.New("realtime: invalid ticket")
	ErrTicketExpired = errors.New("realtime: ticket expired")
)

// ticketClaims bind one identity to one request channel for a short window.
type ticketClaims struct {
	DisplayName string `json:"name"`
	Role        string `json:"role"`
	RequestID   string `json:"request_id"`
	jwt.RegisteredClaims
}

// TicketIssuer mints and verifies HS256 channel join tickets. A ticket is
// single-purpose: it authorizes joining the channel of the request it names,
// nothing else.
type TicketIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTicketIssuer(secret []byte, ttl time.Duration) *TicketIssuer {
	return &TicketIssuer{secret: secret, ttl: ttl}
}

// TTL reports how long issued tickets stay valid.
func (t *TicketIssuer) TTL() time.Duration { return t.ttl }

// Issue mints a ticket for ident to join requestID's channel.
func (t *TicketIssuer) Issue(requestID string, ident identity.Identity) (string, error) {
	now := time.Now()
	claims := ticketClaims{
		DisplayName: ident.DisplayName,
		Role:        ident.Role,
		RequestID:   requestID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign ticket: %w", err)
	}
	return signed, nil
}

// Verify checks the ticket's signature, expiry, and channel binding, and
// returns the identity it was issued to.
func (t *TicketIssuer) Verify(ticket, requestID string) (identity.Identity, error) {
	var claims ticketClaims
	token, err := jwt.ParseWithClaims(ticket, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return identity.Identity{}, ErrTicketExpired
		}
		return identity.Identity{}, ErrTicketInvalid
	}
	if !token.Valid || claims.RequestID != requestID || claims.Subject == "" {
		return identity.Identity{}, ErrTicketInvalid
	}

	return identity.Identity{
		ID:          claims.Subject,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	}, nil
}
