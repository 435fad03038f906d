package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/oauth2"

	"github.com/quillagent/quill/pkg/schema"
)

const deviceAuthURL = "https://oauth2.googleapis.com/device/code"

// DeviceLogin runs the OAuth device flow: it prints a verification URL and a
// short code to out, polls until the user authorizes on another device, and
// stores the resulting token. Requires a "TV and Limited Input Device" OAuth
// client; for other client types, obtain a token elsewhere and feed it to
// Manager.Store.
func (m *Manager) DeviceLogin(ctx context.Context, out io.Writer) error {
	if m.creds == nil {
		return schema.NewError(schema.ErrCodeValidation, "device login requires a client credentials file")
	}

	cfg := &oauth2.Config{
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		Scopes:       DefaultScopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: deviceAuthURL,
			TokenURL:      m.creds.TokenURI,
		},
	}

	resp, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return schema.NewError(schema.ErrCodeUnavailable, "device code request failed").WithCause(err)
	}

	fmt.Fprintln(out, "Open this URL in any browser (phone or laptop):")
	fmt.Fprintln(out, resp.VerificationURI)
	fmt.Fprintln(out, "Enter this code:", resp.UserCode)
	fmt.Fprintln(out, "Waiting for authorization...")

	tok, err := cfg.DeviceAccessToken(ctx, resp)
	if err != nil {
		return schema.NewError(schema.ErrCodeUnauthenticated, "device authorization failed").WithCause(err)
	}

	t := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     m.creds.TokenURI,
		ClientID:     m.creds.ClientID,
		ClientSecret: m.creds.ClientSecret,
		Scopes:       DefaultScopes,
		Expiry:       tok.Expiry,
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "failed to encode token").WithCause(err)
	}
	return m.Store(ctx, payload)
}
