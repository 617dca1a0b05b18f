package httpauth

import (
	"strings"
	"testing"
)

const validDigestHeader = `username="bob", realm="R", nonce="n1", uri="/x", response="r", qop="auth", nc="1", cnonce="c1", opaque="o"`

func TestParseDigest(t *testing.T) {
	fields, err := ParseDigest(validDigestHeader)
	if err != nil {
		t.Fatalf("ParseDigest failed: %v", err)
	}

	if fields.Username != "bob" {
		t.Errorf("expected username 'bob', got %q", fields.Username)
	}
	if fields.Realm != "R" {
		t.Errorf("expected realm 'R', got %q", fields.Realm)
	}
	if fields.Nonce != "n1" {
		t.Errorf("expected nonce 'n1', got %q", fields.Nonce)
	}
	if fields.URI != "/x" {
		t.Errorf("expected uri '/x', got %q", fields.URI)
	}
	if fields.Response != "r" {
		t.Errorf("expected response 'r', got %q", fields.Response)
	}
	if fields.Qop != "auth" {
		t.Errorf("expected qop 'auth', got %q", fields.Qop)
	}
	if fields.NC != "1" {
		t.Errorf("expected nc '1', got %q", fields.NC)
	}
	if fields.CNonce != "c1" {
		t.Errorf("expected cnonce 'c1', got %q", fields.CNonce)
	}
	if fields.Opaque != "o" {
		t.Errorf("expected opaque 'o', got %q", fields.Opaque)
	}
}

func TestParseDigestSchemePrefix(t *testing.T) {
	if _, err := ParseDigest("Digest " + validDigestHeader); err != nil {
		t.Fatalf("ParseDigest with scheme prefix failed: %v", err)
	}
}

func TestParseDigestMissingField(t *testing.T) {
	// Removing any single required field must make parsing fail.
	for _, key := range requiredDigestKeys {
		var kept []string
		for _, pair := range strings.Split(validDigestHeader, ", ") {
			if !strings.HasPrefix(pair, key+"=") {
				kept = append(kept, pair)
			}
		}
		header := strings.Join(kept, ", ")

		if _, err := ParseDigest(header); err == nil {
			t.Errorf("expected failure without %q, got success", key)
		}
	}
}

func TestParseDigestUnquotedTokens(t *testing.T) {
	header := `username=bob,realm=R,nonce=n1,uri=/x,response=r,qop=auth,nc=00000001,cnonce=c1,opaque=o`
	fields, err := ParseDigest(header)
	if err != nil {
		t.Fatalf("ParseDigest failed: %v", err)
	}
	if fields.NC != "00000001" {
		t.Errorf("expected nc '00000001', got %q", fields.NC)
	}
}

func TestParseDigestQuotedValueWithComma(t *testing.T) {
	header := strings.Replace(validDigestHeader, `uri="/x"`, `uri="/x?a=1,b=2"`, 1)
	fields, err := ParseDigest(header)
	if err != nil {
		t.Fatalf("ParseDigest failed: %v", err)
	}
	if fields.URI != "/x?a=1,b=2" {
		t.Errorf("expected comma preserved inside quotes, got %q", fields.URI)
	}
}

// TestComputeResponseRFCExample checks the codec against the worked example
// in RFC 2617 section 3.5.
func TestComputeResponseRFCExample(t *testing.T) {
	a1 := HashA1("Mufasa", "testrealm@host.com", "Circle Of Life")
	if a1 != "939e7578ed9e3c518a452acee763bce9" {
		t.Fatalf("unexpected A1: %s", a1)
	}

	response := ComputeResponse(a1,
		"dcd98b7102dd2f0e8b11d0f600bfb0c093",
		"00000001", "0a4f113b", "auth", "GET", "/dir/index.html")
	if response != "6629fae49393a05397450978507c4ef1" {
		t.Errorf("unexpected response: %s", response)
	}
}

func TestComputeResponseDeterministic(t *testing.T) {
	a1 := HashA1("alice", "R", "secret")
	first := ComputeResponse(a1, "n1", "00000001", "c1", "auth", "GET", "/x")
	for i := 0; i < 3; i++ {
		if got := ComputeResponse(a1, "n1", "00000001", "c1", "auth", "GET", "/x"); got != first {
			t.Fatalf("ComputeResponse not deterministic: %s != %s", got, first)
		}
	}
}
