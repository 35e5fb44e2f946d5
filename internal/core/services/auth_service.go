package services

import (
	"errors"
	"time"

	"confsync/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

// AuthService issues and validates participant access tokens. A token binds
// one participant to one conference; moderator status is carried as a claim.
type AuthService interface {
	GenerateToken(participant domain.Participant, moderator bool) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type Claims struct {
	ConferenceID  domain.ConferenceID  `json:"conference_id"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
	Moderator     bool                 `json:"moderator"`
	jwt.RegisteredClaims
}

// Participant returns the participant identity the claims describe.
func (c *Claims) Participant() domain.Participant {
	return domain.Participant{
		ConferenceID:  c.ConferenceID,
		ParticipantID: c.ParticipantID,
	}
}

type authService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
}

func NewAuthService(jwtSecret string, accessTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
	}
}

func (s *authService) GenerateToken(participant domain.Participant, moderator bool) (string, error) {
	claims := &Claims{
		ConferenceID:  participant.ConferenceID,
		ParticipantID: participant.ParticipantID,
		Moderator:     moderator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ConferenceID == "" || claims.ParticipantID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
