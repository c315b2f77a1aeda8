package config

import "testing"

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, map[string]string{
		"JWT_SECRET":        "s3cret",
		"ADMIN_SECRET":      "",
		"PORT":              "",
		"UPSTREAM_PROVIDER": "",
		"MONGODB_DATABASE":  "",
		"LEDGER_CHAIN_ID":   "",
		"STT_FALLBACK":      "",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.UpstreamProvider != ProviderOpenAI {
		t.Errorf("expected default provider openai, got %s", cfg.UpstreamProvider)
	}
	if cfg.MongoDatabase != "suarakita" {
		t.Errorf("expected default database suarakita, got %s", cfg.MongoDatabase)
	}
	if cfg.STTFallback {
		t.Error("expected STT fallback disabled by default")
	}
	if cfg.AdminSecret != "" {
		t.Error("expected admin tokens disabled by default")
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	setEnv(t, map[string]string{"JWT_SECRET": ""})
	if _, err := Load(); err == nil {
		t.Error("expected error when JWT_SECRET is missing")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	setEnv(t, map[string]string{
		"JWT_SECRET":        "s3cret",
		"UPSTREAM_PROVIDER": "whisper",
	})
	if _, err := Load(); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestLoadGeminiRequiresKey(t *testing.T) {
	setEnv(t, map[string]string{
		"JWT_SECRET":        "s3cret",
		"UPSTREAM_PROVIDER": "gemini",
		"GEMINI_API_KEY":    "",
		"UPSTREAM_API_KEY":  "",
	})
	if _, err := Load(); err == nil {
		t.Error("expected error when gemini key is missing")
	}
}

func TestLoadParsesLedgerChainID(t *testing.T) {
	setEnv(t, map[string]string{
		"JWT_SECRET":      "s3cret",
		"LEDGER_CHAIN_ID": "43113",
		"LEDGER_RPC_URL":  "http://localhost:8545",
		"LEDGER_CONTRACT": "0x00000000000000000000000000000000000000aa",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LedgerChainID != 43113 {
		t.Errorf("expected chain id 43113, got %d", cfg.LedgerChainID)
	}
	if !cfg.LedgerConfigured() {
		t.Error("expected ledger to be configured")
	}
}

func TestLoadRejectsBadChainID(t *testing.T) {
	setEnv(t, map[string]string{
		"JWT_SECRET":      "s3cret",
		"LEDGER_CHAIN_ID": "fuji",
	})
	if _, err := Load(); err == nil {
		t.Error("expected error for non-numeric chain id")
	}
}
