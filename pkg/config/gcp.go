package config

import (
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions picks credentials for Google clients: inline JSON wins over a
// key file; with neither, the SDK falls back to application default
// credentials.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	switch {
	case strings.TrimSpace(g.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(g.CredentialsJSON))}
	case strings.TrimSpace(g.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(g.ApplicationCredentials)}
	}
	return nil
}
