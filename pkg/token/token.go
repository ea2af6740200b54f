// Package token handles the bearer plumbing for tenant-scoped calls:
// exchanging a user token for short-lived access credentials at the
// credential broker, and reading the issuing domain out of the token.
// Token signature validation belongs to the auth service, not here.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"

	"saasid/pkg/apperr"
)

// Credentials is the broker's response shape.
type Credentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
}

type Broker struct {
	endpoint string
	client   *http.Client
}

// NewBroker points at the credential broker service.
// endpoint is the service base URL, e.g. http://token-manager:8083.
func NewBroker(endpoint string) *Broker {
	return &Broker{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// FromRequest extracts the bearer token and exchanges it for
// credentials. A missing Authorization header is a hard failure before
// any remote call is attempted.
func (b *Broker) FromRequest(ctx context.Context, r *http.Request) (Credentials, error) {
	raw, err := BearerFrom(r)
	if err != nil {
		return Credentials{}, err
	}
	return b.Exchange(ctx, raw)
}

// Exchange posts the token to the broker and returns the short-lived
// credential set.
func (b *Broker) Exchange(ctx context.Context, token string) (Credentials, error) {
	body, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/token/user", bytes.NewReader(body))
	if err != nil {
		return Credentials{}, apperr.Wrap(err, apperr.UpstreamFailure, "build credential request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return Credentials{}, apperr.Wrap(err, apperr.UpstreamFailure, "credential broker unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Credentials{}, apperr.Newf(apperr.UpstreamFailure, "credential broker returned %d", resp.StatusCode)
	}
	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return Credentials{}, apperr.Wrap(err, apperr.UpstreamFailure, "decode credential response")
	}
	return creds, nil
}

// BearerFrom returns the raw token from the Authorization header.
func BearerFrom(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", apperr.New(apperr.AuthenticationRequired, "bearer token not found")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", apperr.New(apperr.AuthenticationRequired, "malformed authorization header")
	}
	return parts[1], nil
}

// DomainIDFromRequest decodes the bearer token without verification and
// returns the authentication-domain id embedded in its issuer claim
// (the segment after the final slash).
func DomainIDFromRequest(r *http.Request) (string, error) {
	raw, err := BearerFrom(r)
	if err != nil {
		return "", err
	}
	tok, err := jwt.ParseInsecure([]byte(raw))
	if err != nil {
		return "", apperr.Wrap(err, apperr.AuthenticationRequired, "decode token")
	}
	iss := tok.Issuer()
	if iss == "" {
		return "", apperr.New(apperr.AuthenticationRequired, "token has no issuer")
	}
	if i := strings.LastIndex(iss, "/"); i >= 0 {
		iss = iss[i+1:]
	}
	if iss == "" {
		return "", apperr.New(apperr.AuthenticationRequired, fmt.Sprintf("no domain id in issuer %q", tok.Issuer()))
	}
	return iss, nil
}
