package db

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/stellamgmt/stella/models"
	"gorm.io/gorm"
)

type AuthRepository interface {
	CreateUser(user *models.User) (*models.User, error)
	IsEmailExist(email string) error
	IsUsernameExist(username string) error
	FindUserByUsername(username string) (*models.User, error)
	FindUserByEmail(email string) (*models.User, error)
	FindUserByID(id uint) (*models.User, error)
	UpdateUser(user *models.User) error
	EditUserProfile(userID uint, details *models.EditProfileRequest) error
	UpdatePassword(hashedPassword string, email string) error
	SetResetToken(email, token string) error
	FindUserByResetToken(token string) (*models.User, error)
	AddToBlackList(blacklist *models.Blacklist) error
	IsTokenInBlacklist(token string) bool
	UpdateUserOnlineStatus(userID uint, online bool) error
	UpsertUserImage(userID uint, url string) error
	SetDeviceToken(userID uint, token string) error
	GetAllUsers() ([]models.User, error)
	FindRoleByName(name string) (*models.Role, error)
}

type authRepo struct {
	DB *gorm.DB
}

func NewAuthRepo(db *GormDB) AuthRepository {
	return &authRepo{db.DB}
}

func (a *authRepo) CreateUser(user *models.User) (*models.User, error) {
	if err := a.DB.Create(user).Error; err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return user, nil
}

func (a *authRepo) IsEmailExist(email string) error {
	var count int64
	err := a.DB.Model(&models.User{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return errors.Wrap(err, "gorm count error")
	}
	if count > 0 {
		return errors.New("email already in use")
	}
	return nil
}

func (a *authRepo) IsUsernameExist(username string) error {
	var count int64
	err := a.DB.Model(&models.User{}).Where("username = ?", username).Count(&count).Error
	if err != nil {
		return errors.Wrap(err, "gorm count error")
	}
	if count > 0 {
		return errors.New("username already in use")
	}
	return nil
}

func (a *authRepo) FindUserByUsername(username string) (*models.User, error) {
	var user models.User
	err := a.DB.Preload("Role").Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("user not found")
		}
		return nil, errors.Wrap(err, "find user by username")
	}
	return &user, nil
}

func (a *authRepo) FindUserByEmail(email string) (*models.User, error) {
	var user models.User
	err := a.DB.Preload("Role").Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("user not found")
		}
		return nil, errors.Wrap(err, "find user by email")
	}
	return &user, nil
}

func (a *authRepo) FindUserByID(id uint) (*models.User, error) {
	var user models.User
	err := a.DB.Preload("Role").Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("user not found")
		}
		return nil, err
	}
	return &user, nil
}

func (a *authRepo) UpdateUser(user *models.User) error {
	return a.DB.Save(user).Error
}

func (a *authRepo) EditUserProfile(userID uint, details *models.EditProfileRequest) error {
	updates := map[string]interface{}{}
	if details.Fullname != "" {
		updates["fullname"] = details.Fullname
	}
	if details.Username != "" {
		updates["username"] = details.Username
	}
	if details.Telephone != "" {
		updates["telephone"] = details.Telephone
	}
	if len(updates) == 0 {
		return nil
	}
	return a.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
}

func (a *authRepo) UpdatePassword(hashedPassword string, email string) error {
	return a.DB.Model(&models.User{}).Where("email = ?", email).
		Updates(map[string]interface{}{"hashed_password": hashedPassword, "reset_token": ""}).Error
}

func (a *authRepo) SetResetToken(email, token string) error {
	return a.DB.Model(&models.User{}).Where("email = ?", email).Update("reset_token", token).Error
}

func (a *authRepo) FindUserByResetToken(token string) (*models.User, error) {
	var user models.User
	err := a.DB.Where("reset_token = ?", token).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("invalid reset token")
		}
		return nil, errors.Wrap(err, "find user by reset token")
	}
	return &user, nil
}

func (a *authRepo) AddToBlackList(blacklist *models.Blacklist) error {
	return a.DB.Create(blacklist).Error
}

func normalizeToken(token string) string {
	return strings.TrimSpace(token)
}

func (a *authRepo) IsTokenInBlacklist(token string) bool {
	var count int64
	a.DB.Model(&models.Blacklist{}).Where("token = ?", normalizeToken(token)).Count(&count)
	return count > 0
}

func (a *authRepo) UpdateUserOnlineStatus(userID uint, online bool) error {
	return a.DB.Model(&models.User{}).Where("id = ?", userID).Update("online", online).Error
}

func (a *authRepo) UpsertUserImage(userID uint, url string) error {
	return a.DB.Model(&models.User{}).Where("id = ?", userID).Update("thumb_nail_url", url).Error
}

func (a *authRepo) SetDeviceToken(userID uint, token string) error {
	return a.DB.Model(&models.User{}).Where("id = ?", userID).Update("device_token", token).Error
}

func (a *authRepo) GetAllUsers() ([]models.User, error) {
	var users []models.User
	if err := a.DB.Preload("Role").Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

func (a *authRepo) FindRoleByName(name string) (*models.Role, error) {
	var role models.Role
	err := a.DB.Where("name = ?", name).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("role not found")
		}
		return nil, errors.Wrap(err, "find role by name")
	}
	return &role, nil
}
