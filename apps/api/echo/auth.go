package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/directory"
)

const contextTokenKey = "identityToken"

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Alias string `json:"alias"`
	Staff bool   `json:"staff,omitempty"`
}

// Identity returns the caller the claims were issued to.
func (c Claims) Identity() directory.Identity {
	return directory.Identity{Alias: c.Alias, IdentityToken: c.Subject, StaffOverride: c.Staff}
}

type tokenIssuer struct {
	config     middleware.JWTConfig
	issuer     string
	expiration time.Duration
}

func newTokenIssuer(conf *core.Config) *tokenIssuer {
	return &tokenIssuer{
		config: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
		issuer:     conf.AppName,
		expiration: conf.Server.TokenExpiration,
	}
}

func (ti *tokenIssuer) claims(idt directory.Identity) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    ti.issuer,
			Subject:   idt.IdentityToken,
			ExpiresAt: now.Add(ti.expiration).Unix(),
			IssuedAt:  now.Unix(),
		},
		Alias: idt.Alias,
		Staff: idt.StaffOverride,
	}
}

// generate returns a signed JWT token string representing the identity.
func (ti *tokenIssuer) generate(idt directory.Identity) (string, error) {
	method := jwt.GetSigningMethod(ti.config.SigningMethod)
	token := jwt.NewWithClaims(method, ti.claims(idt))

	ss, err := token.SignedString(ti.config.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

type authApi struct {
	tokens   *tokenIssuer
	dir      Directory
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, tokens *tokenIssuer, dir Directory, validate *validator.Validate, limit ...echo.MiddlewareFunc) {
	api := authApi{tokens: tokens, dir: dir, validate: validate}
	g.POST("/login", api.login, limit...)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	idt, err := api.dir.Authenticate(data.Alias, data.Secret)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.tokens.generate(idt)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, IdentityToken: idt.IdentityToken, Staff: idt.StaffOverride})
}

type (
	LoginRequest struct {
		Alias  string `json:"alias" validate:"required,alias"`
		Secret string `json:"secret" validate:"required"`
	}

	LoginResponse struct {
		Token         string `json:"token"`
		IdentityToken string `json:"identity_token"`
		Staff         bool   `json:"staff"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Alias = core.CleanString(lr.Alias)
	lr.Secret = strings.TrimSpace(lr.Secret)
	return validate.Struct(lr)
}
