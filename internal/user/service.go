package user

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"go-chat-relay/internal/auth"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Store is the persistence the service needs; *Repository implements it.
type Store interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id int) (*User, error)
	SearchUsers(ctx context.Context, query string) ([]User, error)
	ListContacts(ctx context.Context, exceptID int) ([]User, error)
}

// TokenIssuer signs access tokens for a principal.
type TokenIssuer interface {
	Issue(p auth.Principal) (string, error)
}

type Service struct {
	repo   Store
	issuer TokenIssuer
	cost   int
}

func NewService(repo Store, issuer TokenIssuer) *Service {
	return &Service{
		repo:   repo,
		issuer: issuer,
		cost:   bcrypt.DefaultCost,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.CreateUser(ctx, &User{
		Username: req.Username,
		Password: string(hashedPwd),
	})
	if err != nil {
		return nil, err
	}

	return &RegisterResponse{ID: u.ID, Username: u.Username}, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(auth.Principal{ID: u.ID, Username: u.Username})
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: token,
		ID:          u.ID,
		Username:    u.Username,
	}, nil
}

func (s *Service) Me(ctx context.Context, id int) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, query)
}

func (s *Service) Contacts(ctx context.Context, id int) ([]User, error) {
	return s.repo.ListContacts(ctx, id)
}
