package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env        string
		wantPrefix string
	}{
		{EnvLive, "sk_live_"},
		{EnvTest, "sk_test_"},
		{"", "sk_live_"},
		{"staging", "sk_live_"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()

			key, err := GenerateAPIKey(tt.env)
			if err != nil {
				t.Fatalf("GenerateAPIKey failed: %v", err)
			}
			if !strings.HasPrefix(key.Plaintext, tt.wantPrefix) {
				t.Errorf("plaintext %q, want prefix %q", key.Plaintext, tt.wantPrefix)
			}
			if len(key.Prefix) != KeyPrefixLen {
				t.Errorf("prefix length = %d", len(key.Prefix))
			}
			if !ValidateKeyFormat(key.Plaintext) {
				t.Errorf("generated key fails its own format check: %s", key.Plaintext)
			}

			ok, err := VerifySecret(key.Plaintext, key.Hash)
			if err != nil || !ok {
				t.Errorf("hash does not verify: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	t.Parallel()

	a, err := GenerateAPIKey(EnvTest)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateAPIKey(EnvTest)
	if err != nil {
		t.Fatal(err)
	}
	if a.Plaintext == b.Plaintext || a.Prefix == b.Prefix {
		t.Error("expected distinct keys")
	}
}

func TestParseAPIKey(t *testing.T) {
	t.Parallel()

	secret := strings.Repeat("ab", 24)
	parsed, err := ParseAPIKey("sk_test_0a1b2c3d_" + secret)
	if err != nil {
		t.Fatalf("ParseAPIKey failed: %v", err)
	}
	if parsed.Env != EnvTest || parsed.Prefix != "0a1b2c3d" || parsed.Secret != secret {
		t.Errorf("parsed = %+v", parsed)
	}

	invalid := []string{
		"",
		"pk_live_0a1b2c_" + strings.Repeat("a", 32),
		"sk_prod_0a1b2c3d_" + secret,
		"sk_live_0A1B2C3D_" + secret,
		"sk_live_0a1b2c3d_" + secret[:40],
		"sk_live_0a1b2c3d_" + secret + "ff",
	}
	for _, key := range invalid {
		if _, err := ParseAPIKey(key); err != ErrInvalidKeyFormat {
			t.Errorf("ParseAPIKey(%q) err = %v, want ErrInvalidKeyFormat", key, err)
		}
	}
}
