package services

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	goval "github.com/go-passwd/validator"
	"github.com/google/uuid"
	"github.com/leebenson/conform"
	"github.com/stellamgmt/stella/config"
	"github.com/stellamgmt/stella/db"
	apiError "github.com/stellamgmt/stella/errors"
	"github.com/stellamgmt/stella/mailingservices"
	"github.com/stellamgmt/stella/models"
	"github.com/stellamgmt/stella/services/jwt"
	"golang.org/x/crypto/bcrypt"
)

// AuthService owns account lifecycle: signup, login, logout, password reset.
type AuthService interface {
	SignupUser(user *models.User, roleName string) (*models.User, error)
	LoginUser(req *models.LoginRequest) (*models.LoginResponse, *apiError.Error)
	GoogleLoginUser(req *models.GoogleLoginRequest) (*models.LoginResponse, *apiError.Error)
	LogoutUser(userID uint, accessToken string) error
	GetUserProfile(userID uint) (*models.User, error)
	EditUserProfile(userID uint, details *models.EditProfileRequest) error
	SendPasswordResetMail(req *models.ForgotPassword) *apiError.Error
	ResetPassword(req *models.ResetPassword, token string) *apiError.Error
	GetAllUsers() ([]models.User, error)
}

type authService struct {
	Config   *config.Config
	authRepo db.AuthRepository
	mail     *mailingservices.Mailgun
}

func NewAuthService(authRepo db.AuthRepository, mail *mailingservices.Mailgun, conf *config.Config) AuthService {
	return &authService{
		Config:   conf,
		authRepo: authRepo,
		mail:     mail,
	}
}

func (s *authService) SignupUser(user *models.User, roleName string) (*models.User, error) {
	if user == nil {
		return nil, fmt.Errorf("user is nil")
	}
	if err := conform.Strings(user); err != nil {
		return nil, err
	}

	if err := s.authRepo.IsEmailExist(user.Email); err != nil {
		return nil, apiError.GetUniqueConstraintError(err)
	}
	if err := s.authRepo.IsUsernameExist(user.Username); err != nil {
		return nil, apiError.GetUniqueConstraintError(err)
	}

	passwordValidator := goval.New(goval.MinLength(8, nil), goval.MaxLength(72, nil))
	if err := passwordValidator.Validate(user.Password); err != nil {
		return nil, apiError.New("password must be between 8 and 72 characters", http.StatusBadRequest)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("signup: hashing password failed: %v", err)
		return nil, apiError.ErrInternalServerError
	}
	user.HashedPassword = string(hashed)
	user.Password = ""

	if roleName == "" {
		roleName = models.RoleClient
	}
	role, err := s.authRepo.FindRoleByName(roleName)
	if err != nil {
		return nil, apiError.New("unknown role "+roleName, http.StatusBadRequest)
	}
	user.RoleID = role.ID

	created, err := s.authRepo.CreateUser(user)
	if err != nil {
		return nil, apiError.GetUniqueConstraintError(err)
	}
	return created, nil
}

func (s *authService) LoginUser(req *models.LoginRequest) (*models.LoginResponse, *apiError.Error) {
	if err := conform.Strings(req); err != nil {
		return nil, apiError.ErrBadRequest
	}

	user, err := s.authRepo.FindUserByEmail(req.Email)
	if err != nil {
		return nil, apiError.New("invalid email or password", http.StatusUnauthorized)
	}
	if user.IsBlocked {
		return nil, apiError.New("account is blocked", http.StatusForbidden)
	}
	if err := user.VerifyPassword(req.Password); err != nil {
		return nil, apiError.New("invalid email or password", http.StatusUnauthorized)
	}

	return s.issueLoginResponse(user)
}

// GoogleLoginUser signs a Google-authenticated email in, provisioning the
// account on first contact.
func (s *authService) GoogleLoginUser(req *models.GoogleLoginRequest) (*models.LoginResponse, *apiError.Error) {
	if req.Email == "" {
		return nil, apiError.ErrBadRequest
	}

	user, err := s.authRepo.FindUserByEmail(req.Email)
	if err != nil {
		username := strings.Split(req.Email, "@")[0]
		role, rerr := s.authRepo.FindRoleByName(models.RoleClient)
		if rerr != nil {
			return nil, apiError.ErrInternalServerError
		}
		user = &models.User{
			Fullname: req.Name,
			Username: username,
			Email:    req.Email,
			IsSocial: true,
			RoleID:   role.ID,
		}
		if user, err = s.authRepo.CreateUser(user); err != nil {
			return nil, apiError.GetUniqueConstraintError(err)
		}
	}

	return s.issueLoginResponse(user)
}

func (s *authService) issueLoginResponse(user *models.User) (*models.LoginResponse, *apiError.Error) {
	token, err := jwt.GenerateToken(user.ID, user.Username, user.Role.Name, s.Config.JWTSecret)
	if err != nil {
		log.Printf("login: generating token failed: %v", err)
		return nil, apiError.ErrInternalServerError
	}

	if err := s.authRepo.UpdateUserOnlineStatus(user.ID, true); err != nil {
		log.Printf("login: setting %s online failed: %v", user.Username, err)
	}

	return &models.LoginResponse{
		UserResponse: models.UserResponse{
			ID:           user.ID,
			Fullname:     user.Fullname,
			Username:     user.Username,
			Email:        user.Email,
			Telephone:    user.Telephone,
			RoleName:     user.Role.Name,
			ThumbNailURL: user.ThumbNailURL,
			Online:       true,
		},
		AccessToken: token,
	}, nil
}

func (s *authService) LogoutUser(userID uint, accessToken string) error {
	if err := s.authRepo.AddToBlackList(&models.Blacklist{Token: accessToken}); err != nil {
		return err
	}
	if err := s.authRepo.UpdateUserOnlineStatus(userID, false); err != nil {
		log.Printf("logout: setting user %d offline failed: %v", userID, err)
	}
	return nil
}

func (s *authService) GetUserProfile(userID uint) (*models.User, error) {
	return s.authRepo.FindUserByID(userID)
}

func (s *authService) EditUserProfile(userID uint, details *models.EditProfileRequest) error {
	if err := conform.Strings(details); err != nil {
		return err
	}
	return s.authRepo.EditUserProfile(userID, details)
}

func (s *authService) SendPasswordResetMail(req *models.ForgotPassword) *apiError.Error {
	if err := conform.Strings(req); err != nil {
		return apiError.ErrBadRequest
	}
	user, err := s.authRepo.FindUserByEmail(req.Email)
	if err != nil {
		// Do not reveal whether the address exists.
		return nil
	}

	token := uuid.NewString()
	if err := s.authRepo.SetResetToken(user.Email, token); err != nil {
		log.Printf("password reset: storing token failed: %v", err)
		return apiError.ErrInternalServerError
	}

	resetLink := fmt.Sprintf("%s/password/reset/%s", s.Config.BaseUrl, token)
	if err := s.mail.SendResetPasswordMail(user.Email, resetLink); err != nil {
		log.Printf("password reset: sending mail to %s failed: %v", user.Email, err)
		return apiError.ErrInternalServerError
	}
	return nil
}

func (s *authService) ResetPassword(req *models.ResetPassword, token string) *apiError.Error {
	if req.Password != req.ConfirmPassword {
		return apiError.New("passwords do not match", http.StatusBadRequest)
	}
	passwordValidator := goval.New(goval.MinLength(8, nil), goval.MaxLength(72, nil))
	if err := passwordValidator.Validate(req.Password); err != nil {
		return apiError.New("password must be between 8 and 72 characters", http.StatusBadRequest)
	}

	user, err := s.authRepo.FindUserByResetToken(token)
	if err != nil {
		return apiError.New("invalid or expired reset token", http.StatusUnauthorized)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return apiError.ErrInternalServerError
	}
	if err := s.authRepo.UpdatePassword(string(hashed), user.Email); err != nil {
		return apiError.ErrInternalServerError
	}
	return nil
}

func (s *authService) GetAllUsers() ([]models.User, error) {
	return s.authRepo.GetAllUsers()
}
