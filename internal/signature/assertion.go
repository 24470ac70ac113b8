// Package signature binds ballots to verified identities. Identity
// verification is delegated to an external assertion service; this package
// turns a verified assertion plus a ballot payload into a content-binding
// proof that can be re-checked at audit time.
package signature

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
)

//go:generate mockgen -source=assertion.go -destination=mocks/mocks.go -package=mocks Verifier

// Assertion is the result of a successful identity verification: opaque proof
// material from the identity provider plus a stable reference for audit.
type Assertion struct {
	ShareholderID id.ShareholderID
	ProofMaterial []byte
	Reference     string
}

// Verifier is the abstract identity-assertion collaborator. Implementations
// may block on external I/O; callers bound the call with a context timeout
// and never hold engine locks across it.
type Verifier interface {
	Verify(ctx context.Context, shareholderID id.ShareholderID, assertionToken string) (Assertion, error)
}

// assertionClaims are the claims the engine requires from an assertion JWT.
type assertionClaims struct {
	ShareholderID string `json:"shareholder_id"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256-signed assertion tokens issued by the identity
// provider. The token's signature bytes become the proof material bound into
// the vote's digest.
type JWTVerifier struct {
	signingKey []byte
	issuer     string
}

func NewJWTVerifier(signingKey, issuer string) *JWTVerifier {
	return &JWTVerifier{signingKey: []byte(signingKey), issuer: issuer}
}

func (v *JWTVerifier) Verify(ctx context.Context, shareholderID id.ShareholderID, assertionToken string) (Assertion, error) {
	if err := ctx.Err(); err != nil {
		return Assertion{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "identity verification cancelled")
	}
	if assertionToken == "" {
		return Assertion{}, dErrors.New(dErrors.CodeIdentityRejected, "assertion token required")
	}

	var claims assertionClaims
	parsed, err := jwt.ParseWithClaims(assertionToken, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Assertion{}, dErrors.New(dErrors.CodeIdentityRejected, "assertion expired")
		}
		return Assertion{}, dErrors.New(dErrors.CodeIdentityRejected, "invalid assertion token")
	}
	if !parsed.Valid {
		return Assertion{}, dErrors.New(dErrors.CodeIdentityRejected, "invalid assertion token")
	}

	asserted, err := id.ParseShareholderID(claims.ShareholderID)
	if err != nil || asserted != shareholderID {
		return Assertion{}, dErrors.New(dErrors.CodeIdentityRejected, "assertion does not match shareholder")
	}

	// The third JWT segment is the provider's signature over the assertion;
	// binding it into the vote digest makes the proof non-repudiable.
	segments := strings.Split(assertionToken, ".")
	if len(segments) != 3 {
		return Assertion{}, dErrors.New(dErrors.CodeIdentityRejected, "malformed assertion token")
	}

	return Assertion{
		ShareholderID: shareholderID,
		ProofMaterial: []byte(segments[2]),
		Reference:     claims.ID,
	}, nil
}

// StaticVerifier is a deterministic test double: it verifies exactly the
// tokens it was seeded with. Replaces the coin-flip verification the engine
// must never ship with.
type StaticVerifier struct {
	accepted map[string]id.ShareholderID
}

func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{accepted: make(map[string]id.ShareholderID)}
}

// Accept registers a token as a valid assertion for the shareholder.
func (v *StaticVerifier) Accept(token string, shareholderID id.ShareholderID) {
	v.accepted[token] = shareholderID
}

func (v *StaticVerifier) Verify(_ context.Context, shareholderID id.ShareholderID, assertionToken string) (Assertion, error) {
	owner, ok := v.accepted[assertionToken]
	if !ok || owner != shareholderID {
		return Assertion{}, dErrors.New(dErrors.CodeIdentityRejected, "assertion rejected")
	}
	return Assertion{
		ShareholderID: shareholderID,
		ProofMaterial: []byte(assertionToken),
		Reference:     assertionToken,
	}, nil
}
