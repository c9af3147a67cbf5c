package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkotenko/slotswapper/internal/apperr"
	"github.com/dkotenko/slotswapper/internal/model"
	"github.com/dkotenko/slotswapper/internal/repository"
)

const tokenTTL = 24 * time.Hour

// Identity аутентифицированный пользователь, извлечённый из токена
type Identity struct {
	UserID int64
	Email  string
	Name   string
}

type tokenClaims struct {
	UserID int64  `json:"uid"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

type AuthService struct {
	userRepo  *repository.UserRepository
	jwtSecret []byte
	logger    *zap.Logger
}

func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, logger *zap.Logger) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
}

// Register регистрирует нового пользователя
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	// Проверяем что email свободен
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal("check existing user", err)
	}
	if existing != nil {
		return nil, apperr.Validation("Email already in use.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperr.Internal("create user", err)
	}

	s.logger.Info("New user registered",
		zap.Int64("user_id", user.ID),
		zap.String("email", user.Email),
	)

	return user, nil
}

// Login проверяет учётные данные и выдаёт JWT
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", nil, apperr.Internal("get user by email", err)
	}
	if user == nil {
		return "", nil, apperr.Validation("Invalid credentials.")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperr.Validation("Invalid credentials.")
	}

	now := time.Now()
	claims := tokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, apperr.Internal("sign token", err)
	}

	s.logger.Info("User logged in", zap.Int64("user_id", user.ID))

	return token, user, nil
}

// ParseToken проверяет JWT и возвращает личность пользователя
func (s *AuthService) ParseToken(tokenString string) (*Identity, error) {
	var claims tokenClaims

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return &Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Name:   claims.Name,
	}, nil
}
