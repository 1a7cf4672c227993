// Package auth verifies bearer tokens and extracts the caller's tenant and role.
package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// Principal is the identity attached to a request after verification.
type Principal struct {
	Tenant  string
	Role    string
	Subject string
}

// Verifier checks JWTs in one of three modes:
//
//	dev   trusts "tenant:role" tokens without a signature (local development)
//	hmac  HS256 with a shared secret
//	jwks  RS256 against keys fetched from AUTH_JWKS_URL
type Verifier struct {
	Mode         string
	HMACSecret   []byte
	JWKSURL      string
	TenantClaim  string
	RoleClaim    string
	SubjectClaim string

	client   *http.Client
	cacheTTL time.Duration

	mu        sync.RWMutex
	keys      []jsonWebKey
	fetchedAt time.Time
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

func NewVerifierFromEnv() *Verifier {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		Mode:         mode,
		HMACSecret:   []byte(os.Getenv("AUTH_HMAC_SECRET")),
		JWKSURL:      os.Getenv("AUTH_JWKS_URL"),
		TenantClaim:  envOr("AUTH_TENANT_CLAIM", "tenant"),
		RoleClaim:    envOr("AUTH_ROLE_CLAIM", "role"),
		SubjectClaim: envOr("AUTH_SUBJECT_CLAIM", "sub"),
		client:       &http.Client{Timeout: 5 * time.Second},
		cacheTTL:     10 * time.Minute,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Verify validates the token per the configured mode and returns the principal.
func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		tenant, role, ok := strings.Cut(token, ":")
		if !ok || tenant == "" {
			return Principal{}, errors.New("dev token must be tenant:role")
		}
		return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
	}

	header, claims, signingInput, sig, err := splitJWT(token)
	if err != nil {
		return Principal{}, err
	}
	alg, _ := header["alg"].(string)
	switch v.Mode {
	case "hmac":
		if alg != "HS256" {
			return Principal{}, fmt.Errorf("alg %q not allowed in hmac mode", alg)
		}
		mac := hmac.New(sha256.New, v.HMACSecret)
		mac.Write(signingInput)
		if !hmac.Equal(mac.Sum(nil), sig) {
			return Principal{}, errors.New("bad signature")
		}
	case "jwks":
		if alg != "RS256" {
			return Principal{}, fmt.Errorf("alg %q not allowed in jwks mode", alg)
		}
		kid, _ := header["kid"].(string)
		pub, err := v.rsaKey(kid)
		if err != nil {
			return Principal{}, err
		}
		digest := sha256.Sum256(signingInput)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
			return Principal{}, errors.New("bad signature")
		}
	default:
		return Principal{}, fmt.Errorf("unknown auth mode %q", v.Mode)
	}

	tenant, _ := claims[v.TenantClaim].(string)
	if tenant == "" {
		return Principal{}, errors.New("token missing tenant claim")
	}
	role, _ := claims[v.RoleClaim].(string)
	if role == "" {
		role = "viewer"
	}
	subject, _ := claims[v.SubjectClaim].(string)
	return Principal{Tenant: tenant, Role: strings.ToLower(role), Subject: subject}, nil
}

func splitJWT(token string) (header, claims map[string]any, signingInput, sig []byte, err error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return nil, nil, nil, nil, errors.New("malformed JWT")
	}
	raw := make([][]byte, 3)
	for i, s := range segs {
		if raw[i], err = base64.RawURLEncoding.DecodeString(s); err != nil {
			return nil, nil, nil, nil, err
		}
	}
	if err = json.Unmarshal(raw[0], &header); err != nil {
		return nil, nil, nil, nil, err
	}
	if err = json.Unmarshal(raw[1], &claims); err != nil {
		return nil, nil, nil, nil, err
	}
	return header, claims, []byte(segs[0] + "." + segs[1]), raw[2], nil
}

// rsaKey returns the cached JWKS key with the given kid, refreshing the
// cache when empty or stale.
func (v *Verifier) rsaKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	keys := v.keys
	stale := time.Since(v.fetchedAt) > v.cacheTTL
	v.mu.RUnlock()
	if len(keys) == 0 || stale {
		if err := v.refreshJWKS(); err != nil {
			return nil, err
		}
		v.mu.RLock()
		keys = v.keys
		v.mu.RUnlock()
	}
	for _, k := range keys {
		if k.Kid != kid || !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		// exponent bytes are big-endian, typically 0x010001
		exp := 0
		for _, b := range e {
			exp = exp<<8 | int(b)
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}, nil
	}
	return nil, fmt.Errorf("kid %q not found in JWKS", kid)
}

func (v *Verifier) refreshJWKS() error {
	if v.JWKSURL == "" {
		return errors.New("AUTH_JWKS_URL not set")
	}
	resp, err := v.client.Get(v.JWKSURL)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	var doc struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return err
	}
	v.mu.Lock()
	v.keys = doc.Keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()
	return nil
}
