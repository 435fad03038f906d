package auth

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"

	"github.com/quillagent/quill/pkg/schema"
)

// Token is the persisted OAuth token, in the same shape Google's authorized
// user files use. The refresh token is the part that matters; access tokens
// are short-lived and re-minted on demand.
type Token struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	TokenURI     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// NormalizeToken decodes a raw token payload (from a file, stdin, or the HTTP
// token endpoint), accepts the access_token alias, and fills client fields
// from creds when missing. A token without refresh_token is rejected since it
// would stop working within the hour.
func NormalizeToken(raw []byte, creds *ClientCredentials) (*Token, error) {
	var fields struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid token JSON").WithCause(err)
	}

	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid token JSON").WithCause(err)
	}
	if t.AccessToken == "" && fields.AccessToken != "" {
		t.AccessToken = fields.AccessToken
	}

	if creds != nil {
		if t.ClientID == "" {
			t.ClientID = creds.ClientID
		}
		if t.ClientSecret == "" {
			t.ClientSecret = creds.ClientSecret
		}
		if t.TokenURI == "" {
			t.TokenURI = creds.TokenURI
		}
	}
	if t.TokenURI == "" {
		t.TokenURI = defaultTokenURI
	}
	if len(t.Scopes) == 0 {
		t.Scopes = DefaultScopes
	}

	if t.RefreshToken == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "token must include refresh_token")
	}
	return &t, nil
}

func (t *Token) oauth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

func (t *Token) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     t.ClientID,
		ClientSecret: t.ClientSecret,
		Scopes:       t.Scopes,
		Endpoint:     oauth2.Endpoint{TokenURL: t.TokenURI},
	}
}
