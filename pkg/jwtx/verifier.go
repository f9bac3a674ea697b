package jwtx

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Reason classifies why a token was rejected.
type Reason string

const (
	ReasonMalformed   Reason = "malformed"
	ReasonSignature   Reason = "signature"
	ReasonIssuer      Reason = "issuer"
	ReasonAudience    Reason = "audience"
	ReasonExpired     Reason = "expired"
	ReasonNotYetValid Reason = "not_yet_valid"
)

var reasonErrs = map[Reason]error{
	ReasonMalformed:   ErrMalformed,
	ReasonSignature:   ErrInvalidSig,
	ReasonIssuer:      ErrIssuer,
	ReasonAudience:    ErrAudience,
	ReasonExpired:     ErrExpired,
	ReasonNotYetValid: ErrNotYetValid,
}

// VerifyError is returned for every rejected token. errors.Is matches both
// the sentinel for its Reason and whatever caused it.
type VerifyError struct {
	Reason Reason
	Err    error
}

func (e *VerifyError) Error() string {
	if e.Err == nil {
		return "jwtx: token rejected: " + string(e.Reason)
	}
	return fmt.Sprintf("jwtx: token rejected: %s: %v", e.Reason, e.Err)
}

func (e *VerifyError) Unwrap() []error {
	return []error{reasonErrs[e.Reason], e.Err}
}

// IsExpired reports whether err is a rejection for an expired token. Callers
// use it to keep expiries out of the security log.
func IsExpired(err error) bool {
	return errors.Is(err, ErrExpired)
}

// VerifyOptions captures what a verifier expects of every token.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Audience values the token must contain one of. Empty means "don't care".
	Audience []string

	// Leeway absorbs clock skew on exp, nbf and iat.
	Leeway time.Duration

	// Algorithms accepted in the JOSE header. Defaults to RS256 and ES256.
	Algorithms []string

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// KeyVerifier checks signatures against a KeySet and then the claims. It
// performs no I/O.
type KeyVerifier struct {
	keys   *KeySet
	opts   VerifyOptions
	parser *jwt.Parser
}

// NewVerifier builds a verifier over keys.
func NewVerifier(keys *KeySet, opts VerifyOptions) *KeyVerifier {
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = []string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods(opts.Algorithms),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if opts.Now != nil {
		popts = append(popts, jwt.WithTimeFunc(opts.Now))
	}

	return &KeyVerifier{keys: keys, opts: opts, parser: jwt.NewParser(popts...)}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *KeyVerifier) Verify(tokenStr string) (Claims, error) {
	var claims Claims

	token, err := v.parser.ParseWithClaims(tokenStr, &claims, v.keyFunc)
	if err != nil {
		return Claims{}, classify(err)
	}
	if !token.Valid {
		return Claims{}, &VerifyError{Reason: ReasonMalformed}
	}

	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return Claims{}, &VerifyError{Reason: ReasonIssuer}
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return Claims{}, &VerifyError{Reason: ReasonAudience}
	}

	return claims, nil
}

func (v *KeyVerifier) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", ErrUnknownKID)
	}

	pub, err := v.keys.Get(kid)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
	}

	// The header alg must agree with the key type, otherwise an RSA kid
	// could be replayed under an EC alg.
	switch pub.(type) {
	case *rsa.PublicKey:
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("%w: alg %s for RSA key", ErrInvalidSig, t.Method.Alg())
		}
	case *ecdsa.PublicKey:
		if t.Method.Alg() != jwt.SigningMethodES256.Alg() {
			return nil, fmt.Errorf("%w: alg %s for EC key", ErrInvalidSig, t.Method.Alg())
		}
	default:
		return nil, fmt.Errorf("%w: unusable key type %T", ErrInvalidSig, pub)
	}
	return pub, nil
}

// classify maps golang-jwt errors onto our reasons.
func classify(err error) *VerifyError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return &VerifyError{Reason: ReasonMalformed, Err: err}
	case errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &VerifyError{Reason: ReasonSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &VerifyError{Reason: ReasonExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return &VerifyError{Reason: ReasonNotYetValid, Err: err}
	default:
		return &VerifyError{Reason: ReasonMalformed, Err: err}
	}
}
