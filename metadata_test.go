package oauth

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewAuthorizationServerMetadata(t *testing.T) {
	md := NewAuthorizationServerMetadata("https://reader.example", []string{"read", "annotate"})

	if md.Issuer != "https://reader.example" {
		t.Errorf("Issuer = %q", md.Issuer)
	}
	if md.AuthorizationEndpoint != "https://reader.example/oauth/authorize" {
		t.Errorf("AuthorizationEndpoint = %q", md.AuthorizationEndpoint)
	}
	if md.TokenEndpoint != "https://reader.example/oauth/token" {
		t.Errorf("TokenEndpoint = %q", md.TokenEndpoint)
	}
	if md.RegistrationEndpoint != "https://reader.example/oauth/register" {
		t.Errorf("RegistrationEndpoint = %q", md.RegistrationEndpoint)
	}
	if len(md.CodeChallengeMethodsSupported) != 1 || md.CodeChallengeMethodsSupported[0] != "S256" {
		t.Errorf("CodeChallengeMethodsSupported = %v, want [S256]", md.CodeChallengeMethodsSupported)
	}
	if !md.ClientIDMetadataDocumentSupported {
		t.Error("ClientIDMetadataDocumentSupported = false")
	}
}

func TestNewAuthorizationServerMetadata_TrailingSlashIssuer(t *testing.T) {
	md := NewAuthorizationServerMetadata("https://reader.example/", nil)

	if strings.Contains(md.TokenEndpoint, "//oauth") {
		t.Errorf("TokenEndpoint = %q, double slash", md.TokenEndpoint)
	}
}

func TestNewProtectedResourceMetadata(t *testing.T) {
	md := NewProtectedResourceMetadata("https://reader.example/api", "https://reader.example", []string{"read"})

	if md.Resource != "https://reader.example/api" {
		t.Errorf("Resource = %q", md.Resource)
	}
	if len(md.AuthorizationServers) != 1 || md.AuthorizationServers[0] != "https://reader.example" {
		t.Errorf("AuthorizationServers = %v", md.AuthorizationServers)
	}
	if len(md.BearerMethodsSupported) != 1 || md.BearerMethodsSupported[0] != "header" {
		t.Errorf("BearerMethodsSupported = %v", md.BearerMethodsSupported)
	}
}

func TestAuthorizationServerMetadataJSON(t *testing.T) {
	md := NewAuthorizationServerMetadata("https://reader.example", []string{"read"})

	data, err := json.Marshal(md)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	// RFC 8414 field names on the wire
	for _, field := range []string{
		`"issuer"`,
		`"authorization_endpoint"`,
		`"token_endpoint"`,
		`"registration_endpoint"`,
		`"code_challenge_methods_supported"`,
		`"client_id_metadata_document_supported"`,
	} {
		if !strings.Contains(string(data), field) {
			t.Errorf("JSON missing %s: %s", field, data)
		}
	}
}
