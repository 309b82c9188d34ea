package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zlnvch/folio/models"
)

const tokenLifetime = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// CreateJWT issues a bearer token for a profile. Login itself happens elsewhere.
func (s *Service) CreateJWT(profileId string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"profileId": profileId,
		"exp":       now.Add(tokenLifetime).Unix(),
		"iat":       now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.JWTSecret)
}

func (s *Service) VerifyJWT(tokenString string) (string, time.Time, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.JWTSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", time.Time{}, err
	}
	if !token.Valid {
		return "", time.Time{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", time.Time{}, errors.New("invalid token claims")
	}

	profileId, ok := claims["profileId"].(string)
	if !ok || profileId == "" {
		return "", time.Time{}, errors.New("missing profileId claim")
	}

	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return "", time.Time{}, errors.New("missing exp claim")
	}

	return profileId, expiry.Time, nil
}

// AuthenticateToken returns the profile the bearer token was issued for.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (string, error) {
	if len(token) == 0 {
		return "", errors.New("token not provided")
	}
	profileId, _, err := s.VerifyJWT(token)
	if err != nil {
		return "", err
	}
	return profileId, nil
}

// Credentials builds the caller's credential context. Both parts are optional, but a
// bearer token that is present must be valid.
func (s *Service) Credentials(ctx context.Context, accessKey, bearer string) (models.CredentialContext, error) {
	creds := models.CredentialContext{AccessKeyId: accessKey}
	if bearer == "" {
		return creds, nil
	}
	profileId, err := s.AuthenticateToken(ctx, bearer)
	if err != nil {
		return models.CredentialContext{}, errors.Join(ErrInvalidToken, err)
	}
	creds.ProfileId = profileId
	return creds, nil
}
