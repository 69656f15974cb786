package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"farmmarket/internal/authz"
	"farmmarket/internal/config"
	"farmmarket/internal/domain/model"
	repo "farmmarket/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// =====================
// Mock UserRepository
// =====================

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil {
		user.ID = 1
	}
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	args := m.Called(ctx, userID)
	if u := args.Get(0); u != nil {
		return u.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) IncrementTokenVersion(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// =====================
// Mock AuthValidator
// =====================

type MockAuthValidator struct {
	mock.Mock
}

func (m *MockAuthValidator) ValidateRegister(ctx context.Context, in RegisterInput) error {
	args := m.Called(ctx, in)
	return args.Error(0)
}

func (m *MockAuthValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	args := m.Called(ctx, email, password)
	return args.Error(0)
}

func testAuthConfig() config.Config {
	return config.Config{JWTSecret: "test_secret", AccessTokenTTL: 15 * time.Minute}
}

// =====================
// Register
// =====================

func TestAuth_Register_Success(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	v := new(MockAuthValidator)
	uc := NewAuthUsecase(testAuthConfig(), users, v)

	v.On("ValidateRegister", ctx, mock.MatchedBy(func(in RegisterInput) bool {
		return in.Email == "juan@example.com" && in.Role == "FARMER"
	})).Return(nil)
	users.On("Create", ctx, mock.AnythingOfType("*model.User")).Return(nil)

	out, err := uc.Register(ctx, RegisterInput{
		Name: " Juan ", Email: " Juan@Example.com ", Password: "password123", Role: "farmer",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.ID)
	assert.Equal(t, "Juan", out.Name)
	assert.Equal(t, "juan@example.com", out.Email)
	assert.Equal(t, "FARMER", out.Role)

	created := users.Calls[0].Arguments.Get(1).(*model.User)
	assert.NotEqual(t, "password123", created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("password123")))

	v.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestAuth_Register_ValidationError(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	v := new(MockAuthValidator)
	uc := NewAuthUsecase(testAuthConfig(), users, v)

	v.On("ValidateRegister", ctx, mock.Anything).Return(NewHTTPError(http.StatusBadRequest, "invalid email"))

	_, err := uc.Register(ctx, RegisterInput{Email: "bad"})
	requireKind(t, err, ErrValidation, http.StatusBadRequest)
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuth_Register_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	v := new(MockAuthValidator)
	uc := NewAuthUsecase(testAuthConfig(), users, v)

	v.On("ValidateRegister", ctx, mock.Anything).Return(nil)
	users.On("Create", ctx, mock.Anything).Return(repo.ErrDuplicateEmail)

	_, err := uc.Register(ctx, RegisterInput{Name: "a", Email: "a@example.com", Password: "password123", Role: "BUYER"})
	requireKind(t, err, ErrConflict, http.StatusConflict)
}

// =====================
// Login
// =====================

func hashed(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestAuth_Login_Success(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	v := new(MockAuthValidator)
	uc := NewAuthUsecase(testAuthConfig(), users, v)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return now }

	user := &model.User{ID: 5, Name: "Ana", Email: "ana@example.com", Role: model.RoleBuyer,
		PasswordHash: hashed(t, "password123"), TokenVersion: 2, IsActive: true}

	v.On("ValidateLogin", ctx, "ana@example.com", "password123").Return(nil)
	users.On("FindByEmail", ctx, "ana@example.com").Return(user, nil)
	users.On("Update", ctx, user).Return(nil)

	out, err := uc.Login(ctx, AuthLoginRequest{Email: "ANA@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.User.ID)
	assert.Equal(t, 900, out.Token.ExpiresIn)
	assert.Equal(t, 2, out.Token.TokenVersion)
	require.NotNil(t, user.LastLoginAt)
	assert.True(t, user.LastLoginAt.Equal(now))

	claims := jwt.MapClaims{}
	_, err = jwt.NewParser(jwt.WithoutClaimsValidation()).ParseWithClaims(out.Token.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test_secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, float64(5), claims["sub"])
	assert.Equal(t, "BUYER", claims["role"])
	assert.Equal(t, float64(2), claims["tv"])
	assert.Equal(t, float64(now.Add(15*time.Minute).Unix()), claims["exp"])
}

func TestAuth_Login_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email", func(t *testing.T) {
		users := new(MockUserRepository)
		v := new(MockAuthValidator)
		v.On("ValidateLogin", ctx, mock.Anything, mock.Anything).Return(nil)
		users.On("FindByEmail", ctx, "x@example.com").Return(nil, nil)

		_, err := NewAuthUsecase(testAuthConfig(), users, v).Login(ctx, AuthLoginRequest{Email: "x@example.com", Password: "password123"})
		requireKind(t, err, ErrUnauthenticated, http.StatusUnauthorized)
	})

	t.Run("wrong password", func(t *testing.T) {
		users := new(MockUserRepository)
		v := new(MockAuthValidator)
		v.On("ValidateLogin", ctx, mock.Anything, mock.Anything).Return(nil)
		users.On("FindByEmail", ctx, "x@example.com").Return(&model.User{
			ID: 1, PasswordHash: hashed(t, "password123"), IsActive: true,
		}, nil)

		_, err := NewAuthUsecase(testAuthConfig(), users, v).Login(ctx, AuthLoginRequest{Email: "x@example.com", Password: "nope-nope"})
		requireKind(t, err, ErrUnauthenticated, http.StatusUnauthorized)
		users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("inactive user", func(t *testing.T) {
		users := new(MockUserRepository)
		v := new(MockAuthValidator)
		v.On("ValidateLogin", ctx, mock.Anything, mock.Anything).Return(nil)
		users.On("FindByEmail", ctx, "x@example.com").Return(&model.User{
			ID: 1, PasswordHash: hashed(t, "password123"), IsActive: false,
		}, nil)

		_, err := NewAuthUsecase(testAuthConfig(), users, v).Login(ctx, AuthLoginRequest{Email: "x@example.com", Password: "password123"})
		requireKind(t, err, ErrUnauthorized, http.StatusForbidden)
	})

	t.Run("db error", func(t *testing.T) {
		users := new(MockUserRepository)
		v := new(MockAuthValidator)
		v.On("ValidateLogin", ctx, mock.Anything, mock.Anything).Return(nil)
		users.On("FindByEmail", ctx, "x@example.com").Return(nil, errors.New("conn refused"))

		_, err := NewAuthUsecase(testAuthConfig(), users, v).Login(ctx, AuthLoginRequest{Email: "x@example.com", Password: "password123"})
		requireKind(t, err, ErrInternal, http.StatusInternalServerError)
	})
}

// =====================
// ForceLogout
// =====================

func TestAuth_ForceLogout(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	uc := NewAuthUsecase(testAuthConfig(), users, new(MockAuthValidator))

	_, err := uc.ForceLogout(ctx, authz.Principal{ID: 2, Role: model.RoleFarmer}, 7)
	requireKind(t, err, ErrUnauthorized, http.StatusForbidden)

	users.On("FindByID", ctx, int64(7)).Return(&model.User{ID: 7, TokenVersion: 3}, nil)
	users.On("IncrementTokenVersion", ctx, int64(7)).Return(nil)
	users.On("FindByID", ctx, int64(8)).Return(nil, nil)

	out, err := uc.ForceLogout(ctx, authz.Principal{ID: 1, Role: model.RoleAdmin}, 7)
	require.NoError(t, err)
	assert.Equal(t, ForceLogoutOutput{UserID: 7, NewTokenVersion: 4}, out)

	_, err = uc.ForceLogout(ctx, authz.Principal{ID: 1, Role: model.RoleAdmin}, 8)
	requireKind(t, err, ErrNotFound, http.StatusNotFound)
	users.AssertNumberOfCalls(t, "IncrementTokenVersion", 1)
}
