package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func rsaPEMPair(t *testing.T) (priv, pub string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	priv = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}))
	pub = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix}))
	return priv, pub
}

func ecPEMPair(t *testing.T) (priv, pub string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}
	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	priv = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
	pub = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix}))
	return priv, pub
}

func TestParseSigningKey_RSA(t *testing.T) {
	priv, _ := rsaPEMPair(t)
	signer, err := ParseSigningKey(priv)
	if err != nil {
		t.Fatalf("ParseSigningKey: %v", err)
	}
	if KeyAlg(signer.Public()) != "RS256" {
		t.Errorf("KeyAlg = %q, want RS256", KeyAlg(signer.Public()))
	}
}

func TestParseSigningKey_EC(t *testing.T) {
	priv, _ := ecPEMPair(t)
	signer, err := ParseSigningKey(priv)
	if err != nil {
		t.Fatalf("ParseSigningKey: %v", err)
	}
	if KeyAlg(signer.Public()) != "ES256" {
		t.Errorf("KeyAlg = %q, want ES256", KeyAlg(signer.Public()))
	}
}

func TestParseVerificationKey_FromFile(t *testing.T) {
	_, pub := rsaPEMPair(t)
	path := filepath.Join(t.TempDir(), "jwt.pub")
	if err := os.WriteFile(path, []byte(pub), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	key, err := ParseVerificationKey(path)
	if err != nil {
		t.Fatalf("ParseVerificationKey: %v", err)
	}
	if KeyAlg(key) != "RS256" {
		t.Errorf("KeyAlg = %q, want RS256", KeyAlg(key))
	}
}

func TestParseVerificationKey_LiteralNewlines(t *testing.T) {
	_, pub := ecPEMPair(t)
	escaped := strings.ReplaceAll(strings.TrimSpace(pub), "\n", `\n`)
	if _, err := ParseVerificationKey(escaped); err != nil {
		t.Fatalf("ParseVerificationKey with escaped newlines: %v", err)
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	priv, pub := rsaPEMPair(t)
	testCases := []struct {
		name string
		pem  string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not pem", "not a pem format"},
		{"missing file", "/nonexistent/key.pem"},
		{"invalid base64", "-----BEGIN PUBLIC KEY-----\n!!!\n-----END PUBLIC KEY-----"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSigningKey(tc.pem); err == nil {
				t.Error("ParseSigningKey: want error, got nil")
			}
			if _, err := ParseVerificationKey(tc.pem); err == nil {
				t.Error("ParseVerificationKey: want error, got nil")
			}
		})
	}

	if _, err := ParseSigningKey(pub); err != ErrInvalidKey {
		t.Errorf("ParseSigningKey(public key) = %v, want ErrInvalidKey", err)
	}
	if _, err := ParseVerificationKey(priv); err != ErrInvalidKey {
		t.Errorf("ParseVerificationKey(private key) = %v, want ErrInvalidKey", err)
	}
}

func TestKeyAlg_Unsupported(t *testing.T) {
	if alg := KeyAlg("not a key"); alg != "" {
		t.Errorf("KeyAlg = %q, want empty", alg)
	}
}
