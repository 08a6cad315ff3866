package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ScopeAirdrop grants access to ledger_airdrop.
const ScopeAirdrop = "ledger:airdrop"

const authClockSkew = 2 * time.Minute

type authenticator struct {
	secret []byte
	issuer string
}

func newAuthenticator(secret, issuer string) *authenticator {
	return &authenticator{secret: []byte(strings.TrimSpace(secret)), issuer: strings.TrimSpace(issuer)}
}

// require checks for an HS256 bearer token carrying scope.
func (a *authenticator) require(r *http.Request, scope string) *RPCError {
	if len(a.secret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if tokenString == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	claims, err := a.parse(tokenString)
	if err != nil {
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	if !hasScope(claims, scope) {
		return &RPCError{Code: codeUnauthorized, Message: "insufficient scope", Data: scope}
	}
	return nil
}

func (a *authenticator) parse(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(authClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

// hasScope accepts a space separated "scope" claim or a "scopes" array.
func hasScope(claims jwt.MapClaims, scope string) bool {
	if raw, ok := claims["scope"].(string); ok {
		for _, s := range strings.Fields(raw) {
			if s == scope {
				return true
			}
		}
	}
	if list, ok := claims["scopes"].([]interface{}); ok {
		for _, item := range list {
			if s, ok := item.(string); ok && s == scope {
				return true
			}
		}
	}
	return false
}

// IssueToken signs an HS256 token carrying scopes. Operators use it to mint
// admin credentials.
func IssueToken(secret, issuer, subject string, ttl time.Duration, scopes ...string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("rpc: token secret required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"scope": strings.Join(scopes, " "),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}
