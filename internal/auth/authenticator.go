package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/Odillon241/Chronodil-sub001/internal/ierr"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the application user a connection is authenticated as.
type Identity struct {
	UserId     string
	UserName   string
	UserAvatar string
}

func (i Identity) IsAuthenticated() bool {
	return i.UserId != ""
}

// Authentication describes a trusted REST caller holding an API key.
type Authentication struct {
	Subject string
	IsAdmin bool
}

type contextKey string

const authenticationKey contextKey = "authentication"

func WithAuthentication(ctx context.Context, auth *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey, auth)
}

func AuthenticationFromContext(ctx context.Context) (*Authentication, bool) {
	auth, ok := ctx.Value(authenticationKey).(*Authentication)
	return auth, ok
}

type Options struct {
	Secret   string
	Audience string
	Issuer   string
	APIKeys  []string
}

type Authenticator struct {
	users     persistence.UserStore
	secret    []byte
	issuer    string
	audience  string
	apiKeys   []string
	jwtParser *jwt.Parser
}

func NewAuthenticator(users persistence.UserStore, options Options) *Authenticator {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}

	if options.Audience != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(options.Audience))
	}

	if options.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(options.Issuer))
	}

	return &Authenticator{
		users:     users,
		secret:    []byte(options.Secret),
		issuer:    options.Issuer,
		audience:  options.Audience,
		apiKeys:   options.APIKeys,
		jwtParser: jwt.NewParser(parserOptions...),
	}
}

func (a *Authenticator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("unexpected signing method"))
	}
	return a.secret, nil
}

// Authenticate verifies the bearer token and resolves its subject to a
// persisted user. A valid token whose subject has no user row fails with
// ErrorCodeUnknownSubject.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("missing token"))
	}

	claims := jwt.RegisteredClaims{}

	_, err := a.jwtParser.ParseWithClaims(tokenString, &claims, a.keyFunc)
	if err != nil {
		return Identity{}, ierr.New(ierr.ErrorCodeUnauthenticated, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return Identity{}, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("invalid subject claim"))
	}

	user, err := a.users.FindUser(ctx, subject)
	if errors.Is(err, persistence.ErrNotFound) {
		return Identity{}, ierr.New(ierr.ErrorCodeUnknownSubject, errors.New("user not found"))
	}
	if err != nil {
		return Identity{}, fmt.Errorf("resolve token subject: %w", err)
	}

	return Identity{
		UserId:     user.Id,
		UserName:   user.Name,
		UserAvatar: user.Avatar,
	}, nil
}

func (a *Authenticator) AuthenticateAPIKey(apiKey string) (*Authentication, error) {
	for _, key := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			return &Authentication{
				Subject: "api",
				IsAdmin: true,
			}, nil
		}
	}

	return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("invalid api key"))
}

// IssueToken signs a token accepted by Authenticate.
func (a *Authenticator) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
