package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/user"
)

const (
	tokenContextKey = "userToken"
	tokenAudience   = "Sikhya"
)

// newJWTConfig returns the JWT auth middleware config.
func newJWTConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Name      string     `json:"name,omitempty"`
	Email     string     `json:"email,omitempty"`
	StudentID string     `json:"student_id,omitempty"`
	Grade     core.Grade `json:"grade,omitempty"`
	IsStudent bool       `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsTeacher bool       `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin   bool       `json:"is_admin,omitempty"`   // -> ADMIN
}

// GetUserClaims returns the claims of a token issued to usr now.
func GetUserClaims(usr user.User, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:      usr.Name,
		Email:     usr.Email,
		StudentID: usr.StudentID,
		Grade:     usr.Grade,
		IsStudent: usr.IsStudent(),
		IsTeacher: usr.IsTeacher(),
		IsAdmin:   usr.IsAdmin(),
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// NewUserToken returns a signed token for usr.
func NewUserToken(usr user.User, conf *core.Config) (string, error) {
	return GenerateToken(GetUserClaims(usr, conf), conf.SecretKey)
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// principal returns the verified identity of the request; it is zero on unauthenticated routes.
func principal(ctx echo.Context) core.Principal {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Principal{}
	}
	return core.Principal{UserID: claims.Subject}
}
