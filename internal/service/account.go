package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"sneaker-review-service/internal/auth"
	"sneaker-review-service/internal/domain"
	"sneaker-review-service/internal/store"
)

// RegisteredMessage is the confirmation shown after a successful registration.
const RegisteredMessage = "Sua conta foi criada com sucesso! Faça o login."

// RegistrationInput is the sign-up form.
type RegistrationInput struct {
	Username  string `json:"username" validate:"required,max=150,username"`
	Password1 string `json:"password1" validate:"required"`
	Password2 string `json:"password2" validate:"required,eqfield=Password1"`
}

// LoginInput is the login form.
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AccountService registers and authenticates users.
type AccountService struct {
	users      store.UserStorer
	validate   *validator.Validate
	bcryptCost int
}

func NewAccountService(users store.UserStorer, bcryptCost, minPasswordLen int) *AccountService {
	return &AccountService{
		users:      users,
		validate:   newValidator(minPasswordLen),
		bcryptCost: bcryptCost,
	}
}

// Register creates an account. It does not log the new user in.
func (s *AccountService) Register(ctx context.Context, in RegistrationInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := s.validate.Struct(in); err != nil {
		return nil, toValidationError(err)
	}

	hash, err := auth.HashPassword(in.Password1, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			ve := &ValidationError{}
			ve.Add("password2", "This password is too long.")
			return nil, ve
		}
		return nil, fmt.Errorf("service: register: %w", err)
	}
	user, err := s.users.CreateUser(ctx, &domain.User{Username: in.Username, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			ve := &ValidationError{}
			ve.Add("username", "A user with that username already exists.")
			return nil, ve
		}
		return nil, fmt.Errorf("service: register: %w", err)
	}
	return user, nil
}

// Authenticate checks credentials and returns the matching user.
func (s *AccountService) Authenticate(ctx context.Context, in LoginInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := s.validate.Struct(in); err != nil {
		return nil, toValidationError(err)
	}

	user, err := s.users.GetUserByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			auth.BurnPasswordCheck(in.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("service: authenticate: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, in.Password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
