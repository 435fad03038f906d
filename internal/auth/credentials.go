package auth

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/quillagent/quill/pkg/schema"
)

// OAuth scopes requested on login. Drive file access is needed for image
// upload; Blogger alone cannot host images.
var (
	BloggerScope = "https://www.googleapis.com/auth/blogger"
	DriveScope   = "https://www.googleapis.com/auth/drive.file"

	DefaultScopes = []string{BloggerScope, DriveScope}
)

const defaultTokenURI = "https://oauth2.googleapis.com/token"

// Both spellings are accepted; the misspelled one shipped in early setups.
var credFileNames = []string{"blogger-cred.json", "bloger-cred.json"}

// ClientCredentials identifies the Google Cloud OAuth client.
type ClientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURI     string `json:"token_uri"`
}

// credFile matches the Google Cloud download format. The client block may sit
// under "web" or "installed", or the file may be the flat block itself.
type credFile struct {
	Web       *ClientCredentials `json:"web"`
	Installed *ClientCredentials `json:"installed"`
	ClientCredentials
}

// LoadClientCredentials reads an OAuth client credentials file.
func LoadClientCredentials(path string) (*ClientCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "credentials file not found: %s", path).WithCause(err)
	}

	var f credFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid credentials file: %s", path).WithCause(err)
	}

	creds := &f.ClientCredentials
	if f.Web != nil {
		creds = f.Web
	} else if f.Installed != nil {
		creds = f.Installed
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "credentials file %s is missing client_id or client_secret", path)
	}
	if creds.TokenURI == "" {
		creds.TokenURI = defaultTokenURI
	}
	return creds, nil
}

// FindClientCredentials looks for a credentials file in dir under the known
// names and loads the first one found.
func FindClientCredentials(dir string) (*ClientCredentials, error) {
	for _, name := range credFileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return LoadClientCredentials(p)
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound,
		"no credentials file in %s (expected %s)", dir, credFileNames[0])
}
