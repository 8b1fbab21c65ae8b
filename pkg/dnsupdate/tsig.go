package dnsupdate

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// TSIG holds an RFC 2845 transaction signature key.
type TSIG struct {
	keyName   string
	secret    string
	algorithm string
}

// NewTSIG validates and normalizes a TSIG key. The secret must be
// base64; the algorithm defaults to hmac-sha256 when empty.
func NewTSIG(keyName, secret, algorithm string) (*TSIG, error) {
	if keyName == "" || secret == "" {
		return nil, fmt.Errorf("tsig key name and secret are required")
	}
	if _, err := base64.StdEncoding.DecodeString(secret); err != nil {
		return nil, fmt.Errorf("tsig secret is not valid base64: %w", err)
	}

	alg, err := tsigAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}

	return &TSIG{
		keyName:   dns.Fqdn(keyName),
		secret:    secret,
		algorithm: alg,
	}, nil
}

// KeyName returns the key name in fqdn form.
func (t *TSIG) KeyName() string {
	return t.keyName
}

// Algorithm returns the normalized algorithm identifier.
func (t *TSIG) Algorithm() string {
	return t.algorithm
}

func (t *TSIG) secretMap() map[string]string {
	return map[string]string{t.keyName: t.secret}
}

func (t *TSIG) sign(msg *dns.Msg) {
	msg.SetTsig(t.keyName, t.algorithm, 300, 0)
}

func tsigAlgorithm(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "hmac-sha256", "sha256":
		return dns.HmacSHA256, nil
	case "hmac-sha512", "sha512":
		return dns.HmacSHA512, nil
	case "hmac-sha1", "sha1":
		return dns.HmacSHA1, nil
	case "hmac-md5", "md5":
		return dns.HmacMD5, nil
	default:
		return "", fmt.Errorf("unsupported tsig algorithm %q", name)
	}
}
