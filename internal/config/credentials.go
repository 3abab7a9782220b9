package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/renewbot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoCredentials is returned when the credential source yields no usable entries.
var ErrNoCredentials = errors.New("no user credentials configured")

// rawCredential accepts both key spellings seen in deployed USERS_JSON values.
type rawCredential struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

func (r rawCredential) credential() schemas.Credential {
	c := schemas.Credential{Identifier: r.Identifier, Secret: r.Secret}
	if c.Identifier == "" {
		c.Identifier = r.Username
	}
	if c.Secret == "" {
		c.Secret = r.Password
	}
	return c
}

// LoadCredentials resolves the ordered credential list from the inline JSON value
// or, if that is empty, from the JSON file. Entries without an identifier are
// skipped. An empty result is ErrNoCredentials.
func (u UsersConfig) LoadCredentials() ([]schemas.Credential, error) {
	data := strings.TrimSpace(u.JSON)
	if data == "" && u.File != "" {
		path, err := homedir.Expand(u.File)
		if err != nil {
			return nil, fmt.Errorf("failed to expand users file path %q: %w", u.File, err)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read users file %q: %w", path, err)
		}
		data = strings.TrimSpace(string(b))
	}
	if data == "" {
		return nil, ErrNoCredentials
	}

	creds, err := ParseCredentials([]byte(data))
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}
	return creds, nil
}

// ParseCredentials decodes either a bare JSON array of credentials or an object
// with a "users" array.
func ParseCredentials(data []byte) ([]schemas.Credential, error) {
	var raws []rawCredential
	switch json.Get(data).ValueType() {
	case jsoniter.ArrayValue:
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("failed to parse users list: %w", err)
		}
	case jsoniter.ObjectValue:
		var wrapper struct {
			Users []rawCredential `json:"users"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("failed to parse users object: %w", err)
		}
		raws = wrapper.Users
	default:
		return nil, fmt.Errorf("users must be a JSON array or an object with a \"users\" array")
	}

	creds := make([]schemas.Credential, 0, len(raws))
	for _, r := range raws {
		c := r.credential()
		if c.Identifier == "" {
			continue
		}
		creds = append(creds, c)
	}
	return creds, nil
}
