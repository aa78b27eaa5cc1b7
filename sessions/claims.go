package sessions

import "github.com/jrsteele09/go-auth-session/internal/utils"

// ClaimsFromToken maps a decoded token payload onto Claims:
//
//	sub                -> ID
//	preferred_username -> Username
//	email              -> Email
//	given_name         -> FirstName
//	family_name        -> LastName
//	realm_access.roles -> Roles
func ClaimsFromToken(payload map[string]any) Claims {
	claims := Claims{
		ID:        utils.StringValue(payload["sub"]),
		Username:  utils.StringValue(payload["preferred_username"]),
		Email:     utils.StringValue(payload["email"]),
		FirstName: utils.StringValue(payload["given_name"]),
		LastName:  utils.StringValue(payload["family_name"]),
		Roles:     []string{},
	}
	if realmAccess, ok := payload["realm_access"].(map[string]any); ok {
		claims.Roles = utils.ToStringSlice(realmAccess["roles"])
	}
	return claims
}

// FillMissing copies attributes from info into the empty fields of c.
func (c Claims) FillMissing(info Claims) Claims {
	if c.ID == "" {
		c.ID = info.ID
	}
	if c.Username == "" {
		c.Username = info.Username
	}
	if c.Email == "" {
		c.Email = info.Email
	}
	if c.FirstName == "" {
		c.FirstName = info.FirstName
	}
	if c.LastName == "" {
		c.LastName = info.LastName
	}
	return c
}
