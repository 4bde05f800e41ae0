// Package auth はレコードストアのusersコレクションを使ったログインとサインアップを提供する。
// パスワードはストアのクエリフィルタで照合する。セキュリティ境界としては扱わない。
package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/datanet/internal/model"
	"github.com/hitoshi/datanet/internal/repository"
)

// 入力不足時のメッセージ。
const (
	msgLoginFieldsRequired  = "Please fill in all fields"
	msgSignupFieldsRequired = "Please fill in all required fields"
)

// SignupInput はサインアップの入力。Phoneは任意。
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, logger *slog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		logger:   logger,
	}
}

// Login はメールアドレスとパスワードが一致するユーザーを返す。
// 返すユーザーにパスワードは含まない。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError(msgLoginFieldsRequired)
	}

	user, err := s.userRepo.FindByCredentials(ctx, email, password)
	if err != nil {
		s.logger.Error("ログイン時のユーザー照合に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewLoginFailedError(err)
	}
	if user == nil {
		s.logger.Info("ログインに失敗しました: 認証情報が一致しません")
		return nil, model.NewInvalidCredentialsError()
	}

	s.logger.Info("ユーザーがログインしました",
		slog.String("user_id", user.ID.String()),
	)
	pub := user.Public()
	return &pub, nil
}

// Signup はユーザーを作成する。同じメールアドレスが既に登録されている場合は作成しない。
// 確認と作成は別リクエストのため、同時実行された場合の重複は防げない。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, model.NewValidationError(msgSignupFieldsRequired)
	}

	existing, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		s.logger.Error("サインアップ時の重複確認に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewSignupFailedError(err)
	}
	if existing != nil {
		return nil, model.NewEmailAlreadyRegisteredError()
	}

	created, err := s.userRepo.Create(ctx, model.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Phone:    in.Phone,
	})
	if err != nil {
		s.logger.Error("ユーザーの作成に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewSignupFailedError(err)
	}

	s.logger.Info("新規ユーザーを作成しました",
		slog.String("user_id", created.ID.String()),
	)
	pub := created.Public()
	return &pub, nil
}
