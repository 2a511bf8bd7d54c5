package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/BookReviewGo/internal/auth"
	"github.com/utafrali/BookReviewGo/internal/repository/memory"
	apperrors "github.com/utafrali/BookReviewGo/pkg/errors"
)

func newTestUserService(t *testing.T) (*UserService, *auth.JWTManager) {
	t.Helper()
	jwtManager := auth.NewJWTManager("service-test-secret-at-least-32-bytes", time.Hour)
	svc := NewUserService(memory.NewStore().Users(), jwtManager, newTestLogger())
	svc.bcryptCost = bcrypt.MinCost
	return svc, jwtManager
}

func TestUserService_RegisterLoginMe(t *testing.T) {
	svc, jwtManager := newTestUserService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, &RegisterInput{Name: " Ada ", Email: "Ada@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", reg.User.Name)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.NotEqual(t, "secret1", reg.User.PasswordHash)
	assert.Equal(t, "Bearer", reg.TokenType)

	claims, err := jwtManager.ValidateAccessToken(reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)

	login, err := svc.Login(ctx, &LoginInput{Email: "ADA@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)
	assert.NotEmpty(t, login.AccessToken)

	me, err := svc.Me(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", me.Email)

	_, err = svc.Me(ctx, "unknown")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserService_Register_Rejects(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input RegisterInput
		code  string
	}{
		{"duplicate email", RegisterInput{Name: "Other", Email: "ADA@example.com", Password: "secret1"}, "ALREADY_EXISTS"},
		{"short password", RegisterInput{Name: "Bob", Email: "bob@example.com", Password: "12345"}, "INVALID_INPUT"},
		{"missing name", RegisterInput{Name: " ", Email: "bob@example.com", Password: "secret1"}, "INVALID_INPUT"},
		{"missing email", RegisterInput{Name: "Bob", Password: "secret1"}, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, &tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, errCode(t, err))
		})
	}
}

func TestUserService_Login_BadCredentials(t *testing.T) {
	svc, _ := newTestUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, &LoginInput{Email: "ada@example.com", Password: "wrong-one"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = svc.Login(ctx, &LoginInput{Email: "nobody@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = svc.Login(ctx, &LoginInput{Email: "ada@example.com"})
	assert.Equal(t, "INVALID_INPUT", errCode(t, err))
}
