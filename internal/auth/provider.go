package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raphaelgruber/docchat/internal/models"
	"golang.org/x/oauth2"
)

var (
	// ErrInvalidCredentials means the identity provider rejected the username or password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrProviderNotConfigured means no token endpoint was configured.
	ErrProviderNotConfigured = errors.New("identity provider not configured")
)

// Provider exchanges user credentials for tokens.
type Provider interface {
	SignIn(ctx context.Context, username, password string) (Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
}

// OAuthProvider signs in through an OAuth2 token endpoint with the
// resource-owner password grant.
type OAuthProvider struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

// NewOAuthProvider creates a provider for the token endpoint at tokenURL.
func NewOAuthProvider(tokenURL, clientID, clientSecret string, scopes []string, httpClient *http.Client) *OAuthProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuthProvider{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// SignIn exchanges username and password for credentials.
func (p *OAuthProvider) SignIn(ctx context.Context, username, password string) (Credentials, error) {
	if err := ValidateSignIn(username, password); err != nil {
		return Credentials{}, err
	}
	if p.conf.Endpoint.TokenURL == "" {
		return Credentials{}, ErrProviderNotConfigured
	}

	tok, err := p.conf.PasswordCredentialsToken(p.context(ctx), username, password)
	if err != nil {
		return Credentials{}, classify(err)
	}
	return credentialsFrom(tok, ""), nil
}

// Refresh trades a refresh token for new credentials. Providers that do not
// rotate refresh tokens keep the old one.
func (p *OAuthProvider) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	if p.conf.Endpoint.TokenURL == "" {
		return Credentials{}, ErrProviderNotConfigured
	}
	if refreshToken == "" {
		return Credentials{}, fmt.Errorf("refresh: %w", ErrInvalidCredentials)
	}

	expired := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	tok, err := p.conf.TokenSource(p.context(ctx), expired).Token()
	if err != nil {
		return Credentials{}, classify(err)
	}
	return credentialsFrom(tok, refreshToken), nil
}

func (p *OAuthProvider) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func credentialsFrom(tok *oauth2.Token, fallbackRefresh string) Credentials {
	creds := Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = fallbackRefresh
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		creds.IDToken = id
	}
	return creds
}

func classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		switch re.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, re.ErrorCode)
		}
	}
	return fmt.Errorf("token request: %w", err)
}

// ValidateSignIn rejects empty sign-in fields before contacting the provider.
func ValidateSignIn(username, password string) error {
	if strings.TrimSpace(username) == "" {
		return models.NewValidationError("username", "is required")
	}
	if password == "" {
		return models.NewValidationError("password", "is required")
	}
	return nil
}
