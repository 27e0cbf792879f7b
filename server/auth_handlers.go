package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	fig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	errs "github.com/stellamgmt/stella/errors"
	"github.com/stellamgmt/stella/models"
	"github.com/stellamgmt/stella/server/response"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type signupInput struct {
	Fullname  string `json:"fullname" binding:"required,min=2"`
	Username  string `json:"username" binding:"required,username"`
	Email     string `json:"email" binding:"required,email"`
	Telephone string `json:"telephone"`
	Password  string `json:"password" binding:"required"`
	Role      string `json:"role"`
}

func (s *Server) handleSignup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input signupInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		user := &models.User{
			Fullname:  input.Fullname,
			Username:  input.Username,
			Email:     input.Email,
			Telephone: input.Telephone,
			Password:  input.Password,
		}
		created, err := s.AuthService.SignupUser(user, input.Role)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "signup successful", http.StatusCreated, gin.H{
			"id":       created.ID,
			"username": created.Username,
			"email":    created.Email,
		}, nil)
	}
}

func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		resp, apiErr := s.AuthService.LoginUser(&req)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "login successful", http.StatusOK, resp, nil)
	}
}

func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")
		accessToken := c.GetString("access_token")

		if err := s.AuthService.LogoutUser(userID, accessToken); err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "logout successful", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleShowProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")
		user, err := s.AuthService.GetUserProfile(userID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "", http.StatusOK, models.UserResponse{
			ID:           user.ID,
			Fullname:     user.Fullname,
			Username:     user.Username,
			Email:        user.Email,
			Telephone:    user.Telephone,
			RoleName:     user.Role.Name,
			ThumbNailURL: user.ThumbNailURL,
			Online:       user.Online,
		}, nil)
	}
}

func (s *Server) handleEditUserProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")

		var details models.EditProfileRequest
		if err := c.ShouldBindJSON(&details); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}
		if err := s.AuthService.EditUserProfile(userID, &details); err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "profile updated", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleGetAllUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := s.AuthService.GetAllUsers()
		if err != nil {
			respondServiceError(c, err)
			return
		}
		out := make([]models.UserResponse, 0, len(users))
		for _, u := range users {
			out = append(out, models.UserResponse{
				ID:           u.ID,
				Fullname:     u.Fullname,
				Username:     u.Username,
				Email:        u.Email,
				RoleName:     u.Role.Name,
				ThumbNailURL: u.ThumbNailURL,
				Online:       u.Online,
			})
		}
		response.JSON(c, "", http.StatusOK, out, nil)
	}
}

func (s *Server) HandleForgotPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ForgotPassword
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}
		if apiErr := s.AuthService.SendPasswordResetMail(&req); apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "a reset link was sent if the address exists", http.StatusOK, nil, nil)
	}
}

func (s *Server) ResetPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")

		var req models.ResetPassword
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}
		if apiErr := s.AuthService.ResetPassword(&req, token); apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "password updated", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleRegisterDeviceToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")

		var req models.DeviceTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}
		if err := s.AuthRepository.SetDeviceToken(userID, req.DeviceToken); err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "device token registered", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleListNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")
		notifications, err := s.NotificationService.ListForUser(userID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "", http.StatusOK, notifications, nil)
	}
}

// Avatar upload. Same S3 pipeline as attachments, but scoped under avatars/.

const maxAvatarSize = 5 * 1024 * 1024

func (s *Server) handleUpdateUserImage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint("userID")
		username := c.GetString("username")

		file, fileHeader, err := c.Request.FormFile("profileImage")
		if err != nil {
			response.JSON(c, "missing or invalid file", http.StatusBadRequest, nil, err)
			return
		}
		if fileHeader.Size > maxAvatarSize {
			response.JSON(c, "file too large", http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}
		mimeType := fileHeader.Header.Get("Content-Type")
		if !strings.HasPrefix(mimeType, "image/") {
			response.JSON(c, "invalid file type "+mimeType, http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}

		client, err := s.createS3Client()
		if err != nil {
			respondServiceError(c, err)
			return
		}
		key := fmt.Sprintf("avatars/%s_%s", username, uuid.NewString())
		url, err := s.uploadFileToS3(c.Request.Context(), client, file, key, mimeType)
		if err != nil {
			response.JSON(c, "upload failed", http.StatusBadGateway, nil, err)
			return
		}

		if err := s.AuthRepository.UpsertUserImage(userID, url); err != nil {
			respondServiceError(c, err)
			return
		}
		response.JSON(c, "profile image updated", http.StatusOK, gin.H{"thumbnail_url": url}, nil)
	}
}

func (s *Server) createS3Client() (*s3.Client, error) {
	cfg, err := fig.LoadDefaultConfig(context.Background(),
		fig.WithRegion(s.Config.AwsRegion),
		fig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.Config.AwsAccessKeyID,
			s.Config.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %v", err)
	}
	return s3.NewFromConfig(cfg), nil
}

func (s *Server) uploadFileToS3(ctx context.Context, client *s3.Client, file multipart.File, key, contentType string) (string, error) {
	defer file.Close()

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Config.AwsBucket),
		Key:         aws.String(key),
		Body:        file,
		ACL:         types.ObjectCannedACLPublicRead,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %v", err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.Config.AwsBucket, s.Config.AwsRegion, key), nil
}

// Google OAuth login.

func (s *Server) googleOauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.Config.GoogleClientID,
		ClientSecret: s.Config.GoogleClientSecret,
		RedirectURL:  s.Config.GoogleRedirectURL,
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
		Endpoint:     google.Endpoint,
	}
}

func (s *Server) HandleGoogleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := randomState()
		if err != nil {
			respondServiceError(c, errs.ErrInternalServerError)
			return
		}
		c.SetCookie("oauth_state", state, int(10*time.Minute/time.Second), "/", "", false, true)
		c.Redirect(http.StatusTemporaryRedirect, s.googleOauthConfig().AuthCodeURL(state))
	}
}

func (s *Server) HandleGoogleCallback() gin.HandlerFunc {
	return func(c *gin.Context) {
		stateCookie, err := c.Cookie("oauth_state")
		if err != nil || stateCookie != c.Query("state") {
			response.JSON(c, "invalid oauth state", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		token, err := s.googleOauthConfig().Exchange(c.Request.Context(), c.Query("code"))
		if err != nil {
			response.JSON(c, "code exchange failed", http.StatusUnauthorized, nil, err)
			return
		}

		info, err := fetchGoogleUserInfo(c.Request.Context(), token.AccessToken)
		if err != nil {
			response.JSON(c, "fetching user info failed", http.StatusBadGateway, nil, err)
			return
		}

		resp, apiErr := s.AuthService.GoogleLoginUser(&models.GoogleLoginRequest{
			Email:    info.Email,
			Name:     info.Name,
			IsSocial: true,
		})
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "login successful", http.StatusOK, resp, nil)
	}
}

type googleUserInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func fetchGoogleUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://www.googleapis.com/oauth2/v2/userinfo?access_token="+accessToken, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
