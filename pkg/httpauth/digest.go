// Package httpauth implements HTTP Basic and Digest challenge-response
// authentication per RFC 2617. The digest codec is a pure parse/compute layer;
// Authenticator owns the nonce lifecycle and the current-user state.
package httpauth

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
)

// ErrMalformedCredentials is returned when a digest header is present but
// missing required fields. Callers treat it the same as absent credentials.
var ErrMalformedCredentials = errors.New("malformed digest credentials")

// DigestFields holds the required fields of one Digest Authorization header.
// Parsing fails unless every field is present.
type DigestFields struct {
	Username string
	Realm    string
	Nonce    string
	URI      string
	Response string
	Qop      string
	NC       string
	CNonce   string
	Opaque   string
}

// digestFieldRe matches key="value", key='value' or key=token pairs for the
// nine required digest keys. Tokens end at whitespace or comma.
var digestFieldRe = regexp.MustCompile(
	`\b(nonce|nc|cnonce|qop|username|uri|response|realm|opaque)=(?:"([^"]*)"|'([^']*)'|([^\s,]+))`)

// requiredDigestKeys is the full key set a digest header must carry.
var requiredDigestKeys = []string{
	"nonce", "nc", "cnonce", "qop", "username", "uri", "response", "realm", "opaque",
}

// ParseDigest extracts the digest fields from an Authorization header value.
// A leading "Digest" scheme marker is tolerated. Returns
// ErrMalformedCredentials when any required key is absent.
func ParseDigest(header string) (*DigestFields, error) {
	header = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), "Digest"))

	values := make(map[string]string, len(requiredDigestKeys))
	for _, match := range digestFieldRe.FindAllStringSubmatch(header, -1) {
		key := match[1]
		value := match[2]
		if value == "" && match[3] != "" {
			value = match[3]
		}
		if value == "" && match[4] != "" {
			value = match[4]
		}
		values[key] = value
	}

	for _, key := range requiredDigestKeys {
		if _, ok := values[key]; !ok {
			return nil, ErrMalformedCredentials
		}
	}

	return &DigestFields{
		Username: values["username"],
		Realm:    values["realm"],
		Nonce:    values["nonce"],
		URI:      values["uri"],
		Response: values["response"],
		Qop:      values["qop"],
		NC:       values["nc"],
		CNonce:   values["cnonce"],
		Opaque:   values["opaque"],
	}, nil
}

// HashA1 computes the RFC 2617 A1 hash binding username, realm and password.
// This is the only credential material the authenticator ever stores.
func HashA1(username, realm, password string) string {
	return md5Hex(username + ":" + realm + ":" + password)
}

// ComputeResponse computes the RFC 2617 qop=auth response hash:
// A2 = H(method:uri), response = H(A1:nonce:nc:cnonce:qop:A2).
// Both sides of a deployment must use the same hash; MD5 matches the
// reference protocol.
func ComputeResponse(a1, nonce, nc, cnonce, qop, method, uri string) string {
	a2 := md5Hex(method + ":" + uri)
	return md5Hex(a1 + ":" + nonce + ":" + nc + ":" + cnonce + ":" + qop + ":" + a2)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
