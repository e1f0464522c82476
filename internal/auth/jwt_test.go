package auth

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterdarksys/servicedesk/internal/models"
)

func TestJWTService_RoundTripPrincipal(t *testing.T) {
	svc := NewJWTService("test-secret", "servicedesk", 15)
	partner := uuid.New()
	want := models.Principal{
		UserID:    uuid.New(),
		Role:      models.RoleClient,
		PartnerID: &partner,
		Email:     "ana@example.com",
		Name:      "Ana",
	}

	token, err := svc.Generate(want)
	require.NoError(t, err)

	got, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestJWTService_RejectsForeignSignature(t *testing.T) {
	issuer := NewJWTService("secret-a", "servicedesk", 15)
	verifier := NewJWTService("secret-b", "servicedesk", 15)

	token, err := issuer.Generate(models.Principal{UserID: uuid.New(), Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsWrongIssuer(t *testing.T) {
	token, err := NewJWTService("s", "other", 15).Generate(models.Principal{UserID: uuid.New(), Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = NewJWTService("s", "servicedesk", 15).Verify(token)
	assert.Error(t, err)
}

func TestJWTService_RejectsExpired(t *testing.T) {
	svc := NewJWTService("s", "servicedesk", -1)
	token, err := svc.Generate(models.Principal{UserID: uuid.New(), Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.Error(t, err)
}

func TestClaims_Principal(t *testing.T) {
	c := &Claims{Role: models.RoleClient}
	c.Subject = uuid.NewString()
	_, err := c.Principal()
	assert.True(t, errors.Is(err, ErrInvalidClaims), "client without partner")

	c = &Claims{Role: models.Role("root")}
	c.Subject = uuid.NewString()
	_, err = c.Principal()
	assert.True(t, errors.Is(err, ErrInvalidClaims), "unknown role")

	c = &Claims{Role: models.RoleAdmin}
	c.Subject = "not-a-uuid"
	_, err = c.Principal()
	assert.True(t, errors.Is(err, ErrInvalidClaims), "bad subject")
}

func TestInspect(t *testing.T) {
	userID := uuid.New()
	token, err := NewJWTService("s", "servicedesk", 15).Generate(models.Principal{UserID: userID, Role: models.RoleConsultant})
	require.NoError(t, err)

	claims, err := Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, models.RoleConsultant, claims.Role)

	_, err = Inspect("garbage")
	assert.Error(t, err)
}
