// Package common contains shared constants and errors used across
// catalogadmin components.
package common

// AccessTokenHeaderName is the HTTP header carrying the bearer access token.
const AccessTokenHeaderName = "Authorization"

// AccessTokenScheme prefixes the token value in AccessTokenHeaderName.
const AccessTokenScheme = "Bearer "
