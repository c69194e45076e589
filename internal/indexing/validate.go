package indexing

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2/google"
)

// IndexingScope is the OAuth scope required by the Google Indexing API.
const IndexingScope = "https://www.googleapis.com/auth/indexing"

// ValidateURL trims raw and checks it is an absolute http(s) URL with a host.
func ValidateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: url is required", ErrValidation)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: invalid url %q", ErrValidation, trimmed)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: invalid url %q: scheme must be http or https", ErrValidation, trimmed)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: invalid url %q: host is required", ErrValidation, trimmed)
	}
	return trimmed, nil
}

// ValidateURLs validates every entry and rejects the whole list on the first bad row.
// Duplicates are preserved.
func ValidateURLs(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one url is required", ErrValidation)
	}
	out := make([]string, 0, len(raw))
	for i, r := range raw {
		u, err := ValidateURL(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// ServiceAccount holds the fields of a Google service-account key that the
// service reads or displays.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
}

// ParseServiceAccount checks that data is a usable service-account key.
func ParseServiceAccount(data []byte) (ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return ServiceAccount{}, fmt.Errorf("%w: credential file is not valid JSON", ErrValidation)
	}
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"type", sa.Type},
		{"project_id", sa.ProjectID},
		{"private_key_id", sa.PrivateKeyID},
		{"private_key", sa.PrivateKey},
		{"client_email", sa.ClientEmail},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return ServiceAccount{}, fmt.Errorf("%w: credential file missing fields: %s",
			ErrValidation, strings.Join(missing, ", "))
	}
	if sa.Type != "service_account" {
		return ServiceAccount{}, fmt.Errorf("%w: credential type %q is not service_account", ErrValidation, sa.Type)
	}
	if _, err := google.JWTConfigFromJSON(data, IndexingScope); err != nil {
		return ServiceAccount{}, fmt.Errorf("%w: credential file rejected: %v", ErrValidation, err)
	}
	return sa, nil
}
