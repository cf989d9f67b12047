package provisioning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hatchflow/provisioning/internal/app/domain/integration"
	"github.com/hatchflow/provisioning/internal/app/domain/provisioning"
)

// credentialSpec describes how a provider's decrypted secret payload becomes
// an engine credential.
type credentialSpec struct {
	credType string
	// oauth payloads are nested under oauthTokenData; token/key payloads
	// map their fields directly onto the credential data object.
	oauth bool
}

var providerCredentials = map[string]credentialSpec{
	"hubspot":  {credType: "hubspotOAuth2Api", oauth: true},
	"slack":    {credType: "slackOAuth2Api", oauth: true},
	"gmail":    {credType: "gmailOAuth2", oauth: true},
	"google":   {credType: "gmailOAuth2", oauth: true},
	"stripe":   {credType: "stripeApi"},
	"notion":   {credType: "notionApi"},
	"airtable": {credType: "airtableTokenApi"},
}

// provisionCredentials decrypts each connected integration and creates the
// corresponding engine credential. Failures are per-provider: a bad payload
// or engine rejection skips that provider and is recorded on the report, it
// never aborts the run.
func (s *Service) provisionCredentials(ctx context.Context, conns []integration.Connection, tenantLabel string, report *provisioning.RunReport) []provisioning.EngineCredential {
	creds := make([]provisioning.EngineCredential, 0, len(conns))

	for _, conn := range conns {
		provider := normalizeProvider(conn.Provider)
		spec, ok := providerCredentials[provider]
		if !ok {
			s.log.WithField("provider", provider).Warn("no engine credential mapping for provider, skipping")
			continue
		}

		plaintext, err := s.decryptor.Decrypt(conn.Ciphertext, conn.IV, conn.AuthTag)
		if err != nil {
			s.log.WithField("provider", provider).WithError(err).Warn("credential decryption failed, skipping provider")
			report.Fail("decrypt_credential", provider, err.Error())
			continue
		}

		data, err := credentialData(spec, plaintext)
		if err != nil {
			s.log.WithField("provider", provider).WithError(err).Warn("credential payload malformed, skipping provider")
			report.Fail("decrypt_credential", provider, err.Error())
			continue
		}

		name := fmt.Sprintf("%s - %s", provider, tenantLabel)
		id, err := s.engine.CreateCredential(ctx, spec.credType, name, data)
		if err != nil {
			s.log.WithField("provider", provider).WithError(err).Warn("engine credential creation failed, skipping provider")
			report.Fail("create_credential", provider, err.Error())
			continue
		}

		report.Succeed("create_credential", provider, id)
		creds = append(creds, provisioning.EngineCredential{
			ID:       id,
			Provider: provider,
			Type:     spec.credType,
			Name:     name,
		})
	}
	return creds
}

// credentialData shapes a decrypted secret payload into the data object the
// engine expects for the credential type.
func credentialData(spec credentialSpec, plaintext string) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(plaintext), &payload); err != nil {
		return nil, fmt.Errorf("decode secret payload: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("secret payload is empty")
	}
	if spec.oauth {
		return map[string]interface{}{"oauthTokenData": payload}, nil
	}
	return payload, nil
}
