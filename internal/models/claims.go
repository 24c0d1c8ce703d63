package models

import "github.com/golang-jwt/jwt/v5"

// RoleModerator is the only role allowed to change the dataset or the bot mode over HTTP.
const RoleModerator = "moderator"

// Claims represents the JWT claims for API access.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}
