package models

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims represents the JWT claims issued by the Keycloak realm.
// See: https://www.keycloak.org/docs/latest/server_admin/#_oidc_token_and_saml_assertion_mappers
type TokenClaims struct {
	jwt.RegisteredClaims                  // Standard JWT claims (sub, iss, aud, exp, iat, etc.)
	Type                 string           `json:"typ,omitempty"`
	AuthorizedParty      string           `json:"azp,omitempty"`
	PreferredUsername    string           `json:"preferred_username,omitempty"`
	Email                string           `json:"email,omitempty"`
	EmailVerified        bool             `json:"email_verified,omitempty"`
	ClientID             string           `json:"client_id,omitempty"`
	Scope                string           `json:"scope,omitempty"`
	RealmAccess          *RealmAccess     `json:"realm_access,omitempty"`
	ResourceAccess       map[string]Roles `json:"resource_access,omitempty"`
}

// RealmAccess lists realm-level roles.
type RealmAccess struct {
	Roles []string `json:"roles"`
}

// Roles lists client-level roles.
type Roles struct {
	Roles []string `json:"roles"`
}

// serviceAccountPrefix is how Keycloak names the user backing a client's service account.
const serviceAccountPrefix = "service-account-"

// IsServiceAccount reports whether the token was issued to a client via the
// client-credentials grant rather than to an end-user.
func (c *TokenClaims) IsServiceAccount() bool {
	return c.ClientID != "" || strings.HasPrefix(c.PreferredUsername, serviceAccountPrefix)
}

// IdentityKind distinguishes the principal a token was issued to.
type IdentityKind string

const (
	IdentityKindUser   IdentityKind = "user"
	IdentityKindClient IdentityKind = "client"
)

// Identity is the principal behind a verified token. Exactly one kind is set.
type Identity struct {
	Kind IdentityKind `json:"kind"`
	// ID is the subject identifier for users and the subject of the
	// service-account user for clients.
	ID string `json:"id"`
	// ClientID is set for client identities only.
	ClientID string `json:"client_id,omitempty"`
}

// IsClient reports whether the identity is a service/machine principal.
func (i Identity) IsClient() bool { return i.Kind == IdentityKindClient }

// IdentityFromClaims builds the Identity variant for verified claims.
func IdentityFromClaims(c *TokenClaims) Identity {
	if c.IsServiceAccount() {
		clientID := c.ClientID
		if clientID == "" {
			clientID = c.AuthorizedParty
		}
		return Identity{Kind: IdentityKindClient, ID: c.Subject, ClientID: clientID}
	}
	return Identity{Kind: IdentityKindUser, ID: c.Subject}
}

// VerifiedToken is the output of token verification. It only exists for tokens
// whose signature and expiry were validated.
type VerifiedToken struct {
	Claims   *TokenClaims
	Identity Identity
}

// Subject returns the verified subject identifier.
func (v *VerifiedToken) Subject() string {
	return v.Claims.Subject
}
