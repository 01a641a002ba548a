package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/kanojo/studio/internal/models"
)

// IdentityProvider performs the browser leg of the authorization-code flow.
// It returns identity facts only; users and sessions are handled by Service.
type IdentityProvider interface {
	AuthCodeURL(state, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (models.Identity, error)
}

// OIDCProvider implements IdentityProvider against any OpenID Connect issuer.
type OIDCProvider struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

// NewOIDCProvider discovers the issuer's endpoints and prepares the OAuth client.
func NewOIDCProvider(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*OIDCProvider, error) {
	if issuer == "" || clientID == "" || redirectURL == "" {
		return nil, errors.New("oidc: issuer, client id and redirect url are required")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc: discover %s: %w", issuer, err)
	}

	name := issuer
	if u, err := url.Parse(issuer); err == nil && u.Host != "" {
		name = u.Host
	}

	return &OIDCProvider{
		name: name,
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// AuthCodeURL builds the authorization URL with S256 PKCE parameters.
func (p *OIDCProvider) AuthCodeURL(state, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode redeems the code, verifies the returned ID token and extracts the identity.
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (models.Identity, error) {
	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return models.Identity{}, fmt.Errorf("oidc token exchange: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return models.Identity{}, errors.New("oidc: provider did not return id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return models.Identity{}, fmt.Errorf("oidc id_token verification: %w", err)
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return models.Identity{}, fmt.Errorf("oidc id_token claims: %w", err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return models.Identity{}, errors.New("oidc: id_token missing sub or email")
	}

	return models.Identity{
		Provider:      p.name,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}
