package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "bc-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected default environment local, got %s", cfg.Environment)
	}
	if cfg.Gateway.Provider != "stripe" {
		t.Errorf("expected default gateway provider stripe, got %s", cfg.Gateway.Provider)
	}
	if cfg.Gateway.Currency != "USD" {
		t.Errorf("expected default currency USD, got %s", cfg.Gateway.Currency)
	}
	if cfg.Pricing.TaxRate != defaultTaxRate {
		t.Errorf("expected default tax rate, got %f", cfg.Pricing.TaxRate)
	}
	if cfg.Pricing.InvoiceDueDays != defaultInvoiceDueDays {
		t.Errorf("expected default invoice due days, got %d", cfg.Pricing.InvoiceDueDays)
	}
	if cfg.Events.ProjectID != "bc-dev" {
		t.Errorf("expected events project to default to firestore project, got %s", cfg.Events.ProjectID)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":             "9090",
		"API_SERVER_READ_TIMEOUT":     "20s",
		"API_ENVIRONMENT":             "Production",
		"API_FIRESTORE_PROJECT_ID":    "bc-prod",
		"API_AUTH_JWT_SECRET":         "secret://auth/jwt",
		"API_GATEWAY_KEY_ID":          "key_live_123",
		"API_GATEWAY_KEY_SECRET":      "secret://gateway/key",
		"API_GATEWAY_WEBHOOK_SECRET":  "secret://gateway/webhook",
		"API_GATEWAY_CURRENCY":        "eur",
		"API_CARRIER_NAME":            "parcelworks",
		"API_CARRIER_BASE_URL":        "https://carrier.example.com",
		"API_CARRIER_API_KEY":         "sm://carrier/key",
		"API_PRICING_TAX_RATE":        "0.08",
		"API_PRICING_SHIPPING_PRICES": "standard=500,express=1500",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		return "resolved:" + ref, nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Environment != "production" {
		t.Errorf("expected lowered environment, got %s", cfg.Environment)
	}
	if cfg.Auth.JWTSecret != "resolved:secret://auth/jwt" {
		t.Errorf("expected resolved jwt secret, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Gateway.KeySecret != "resolved:secret://gateway/key" {
		t.Errorf("expected resolved gateway key, got %s", cfg.Gateway.KeySecret)
	}
	if cfg.Gateway.Currency != "EUR" {
		t.Errorf("expected uppercased currency, got %s", cfg.Gateway.Currency)
	}
	// sm:// refs normalise to secret:// before resolution.
	if cfg.Carrier.APIKey != "resolved:secret://carrier/key" {
		t.Errorf("expected normalised carrier key, got %s", cfg.Carrier.APIKey)
	}
	if cfg.Pricing.TaxRate != 0.08 {
		t.Errorf("unexpected tax rate: %f", cfg.Pricing.TaxRate)
	}
	if cfg.Pricing.ShippingPrices["standard"] != 500 || cfg.Pricing.ShippingPrices["express"] != 1500 {
		t.Errorf("unexpected shipping prices: %v", cfg.Pricing.ShippingPrices)
	}
}

func TestLoadMissingRequiredFields(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	found := false
	for _, field := range fields {
		if field == "Firestore.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Firestore.ProjectID in %v", fields)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "bc-dev",
		"API_GATEWAY_KEY_SECRET":   "secret://gateway/key",
	}
	resolver := SecretResolverFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("boom")
	})

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err == nil {
		t.Fatalf("expected secret error")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://gateway/key" {
		t.Fatalf("unexpected ref %s", secretErr.Ref)
	}
}

func TestLoadRequiredSecretsMissing(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "bc-dev",
	}

	_, err := Load(
		context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Gateway.KeySecret"),
	)
	if err == nil {
		t.Fatalf("expected missing secrets error")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Gateway.KeySecret" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "API_FIRESTORE_PROJECT_ID=bc-env\nexport API_SERVER_PORT=7070\n# comment\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.ProjectID != "bc-env" {
		t.Errorf("expected project from env file, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from env file, got %s", cfg.Server.Port)
	}
}
