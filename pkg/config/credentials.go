package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// Credentials are static AWS keys read from the credentials file.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

func (c Credentials) Empty() bool { return c.AccessKeyID == "" && c.SecretAccessKey == "" }

// credentialKeys are the lower-cased names looked up in every section.
var credentialKeys = []string{"aws_access_key_id", "aws_secret_access_key", "aws_session_token"}

// LoadCredentials reads an INI-style key file (KEY=value or KEY: value,
// optional [section] headers, # and ; comments). Keys match
// case-insensitively in any section; a later section overrides an earlier
// one.
func LoadCredentials(path string) (Credentials, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: credentials %s: %v", ErrConfig, path, err)
	}

	vals := map[string]string{}
	for _, sec := range f.Sections() {
		for _, k := range credentialKeys {
			if sec.HasKey(k) {
				vals[k] = sec.Key(k).String()
			}
		}
	}

	c := Credentials{
		AccessKeyID:     vals["aws_access_key_id"],
		SecretAccessKey: vals["aws_secret_access_key"],
		SessionToken:    vals["aws_session_token"],
	}
	var missing []string
	if c.AccessKeyID == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if c.SecretAccessKey == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("%w: %s: missing %s", ErrConfig, path, strings.Join(missing, ", "))
	}
	return c, nil
}
