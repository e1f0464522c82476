package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/afterdarksys/servicedesk/internal/models"
)

var ErrInvalidClaims = errors.New("invalid token claims")

// Claims carries the principal inside an access token
type Claims struct {
	Role      models.Role `json:"role"`
	PartnerID string      `json:"partner_id,omitempty"`
	Email     string      `json:"email,omitempty"`
	Name      string      `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Principal converts verified claims into the acting user
func (c *Claims) Principal() (models.Principal, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidClaims)
	}
	if !c.Role.Valid() {
		return models.Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidClaims, c.Role)
	}

	p := models.Principal{
		UserID: userID,
		Role:   c.Role,
		Email:  c.Email,
		Name:   c.Name,
	}
	if c.PartnerID != "" {
		partnerID, err := uuid.Parse(c.PartnerID)
		if err != nil {
			return models.Principal{}, fmt.Errorf("%w: partner_id is not a uuid", ErrInvalidClaims)
		}
		p.PartnerID = &partnerID
	}
	if p.Role == models.RoleClient && p.PartnerID == nil {
		return models.Principal{}, fmt.Errorf("%w: client tokens require partner_id", ErrInvalidClaims)
	}
	return p, nil
}

// JWTService signs and verifies HS256 access tokens
type JWTService struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
}

func NewJWTService(secret, issuer string, accessMinutes int) *JWTService {
	return &JWTService{
		secret:    []byte(secret),
		issuer:    issuer,
		accessTTL: time.Duration(accessMinutes) * time.Minute,
	}
}

// Generate issues an access token for the principal
func (s *JWTService) Generate(p models.Principal) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		Role:  p.Role,
		Email: p.Email,
		Name:  p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	if p.PartnerID != nil {
		claims.PartnerID = p.PartnerID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token
func (s *JWTService) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// Authenticate verifies a token and returns its principal
func (s *JWTService) Authenticate(tokenString string) (models.Principal, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return models.Principal{}, err
	}
	return claims.Principal()
}

// Inspect decodes claims without checking the signature. It is meant for
// displaying a locally stored token, never for authorization.
func Inspect(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return claims, nil
}
