package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"

	"tenant-authz/internal/authz/domain"
)

var (
	// ErrInvalidCredential is returned when a token is malformed, has a bad signature or unknown issuer/audience.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpiredCredential is returned when a correctly signed token is past its exp claim.
	ErrExpiredCredential = errors.New("expired credential")
	// ErrNoVerificationKey is returned when neither an HMAC secret nor a public key is configured.
	ErrNoVerificationKey = errors.New("no verification key configured")
)

// AccessClaims are the claims carried by an access token. OrgID and Role are advisory:
// they snapshot the caller's default org and role at issuance time.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
	OrgID  string `json:"orgId,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Verifier validates bearer tokens. It is safe for concurrent use and holds no mutable state.
type Verifier struct {
	secret    []byte
	publicKey crypto.PublicKey
	issuer    string
	audience  string
	clock     clock.Clock
}

// NewVerifier returns a Verifier that accepts HS256 tokens signed with secret and, when publicKey
// is non-nil, RS256/ES256 tokens signed by its private half. issuer and audience are enforced only
// when non-empty. clk may be nil, in which case the wall clock is used.
func NewVerifier(secret []byte, publicKey crypto.PublicKey, issuer, audience string, clk clock.Clock) (*Verifier, error) {
	if len(secret) == 0 && publicKey == nil {
		return nil, ErrNoVerificationKey
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Verifier{secret: secret, publicKey: publicKey, issuer: issuer, audience: audience, clock: clk}, nil
}

// Verify checks the token's signature and expiry and returns the identity it carries.
// A bad signature is reported as ErrInvalidCredential even if the token is also expired.
func (v *Verifier) Verify(tokenString string) (*domain.Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidCredential
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods()),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, v.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredential
		}
		return nil, ErrInvalidCredential
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidCredential
	}
	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return nil, ErrInvalidCredential
	}
	return &domain.Identity{
		SubjectID:   subject,
		Email:       claims.Email,
		IssuedRole:  claims.Role,
		IssuedOrgID: claims.OrgID,
	}, nil
}

func (v *Verifier) methods() []string {
	var m []string
	if len(v.secret) > 0 {
		m = append(m, jwt.SigningMethodHS256.Alg())
	}
	if alg := KeyAlg(v.publicKey); alg != "" {
		m = append(m, alg)
	}
	return m
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) > 0 {
			return v.secret, nil
		}
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		if v.publicKey != nil {
			return v.publicKey, nil
		}
	}
	return nil, ErrInvalidCredential
}

// Issuer mints access tokens. The server itself only verifies; Issuer backs cmd/seed and tests.
type Issuer struct {
	key      interface{}
	method   jwt.SigningMethod
	issuer   string
	audience string
	ttl      time.Duration
	clock    clock.Clock
}

// NewIssuer returns an Issuer signing with key: a []byte secret (HS256), an RSA private key (RS256)
// or an ECDSA P-256 private key (ES256).
func NewIssuer(key interface{}, issuer, audience string, ttl time.Duration, clk clock.Clock) (*Issuer, error) {
	var method jwt.SigningMethod
	switch k := key.(type) {
	case []byte:
		if len(k) == 0 {
			return nil, ErrNoVerificationKey
		}
		method = jwt.SigningMethodHS256
	case *rsa.PrivateKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PrivateKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Issuer{key: key, method: method, issuer: issuer, audience: audience, ttl: ttl, clock: clk}, nil
}

// IssueAccess issues an access token for the user with advisory org and role claims.
// Returns the token string, its jti, and expiration time.
func (i *Issuer) IssueAccess(userID, email, orgID, role string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := i.clock.Now().UTC()
	expiresAt = now.Add(i.ttl)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
		Email:  email,
		OrgID:  orgID,
		Role:   role,
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}
	token, err = jwt.NewWithClaims(i.method, claims).SignedString(i.key)
	return token, jti, expiresAt, err
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
