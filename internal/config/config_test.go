package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestEnvStrFallsBackWhenUnset(t *testing.T) {
	clearEnv(t, "MF_TEST_STR")
	if got := envStr("MF_TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("envStr() = %q, want fallback", got)
	}
}

func TestEnvStrUsesSetValue(t *testing.T) {
	clearEnv(t, "MF_TEST_STR")
	os.Setenv("MF_TEST_STR", "override")
	if got := envStr("MF_TEST_STR", "fallback"); got != "override" {
		t.Errorf("envStr() = %q, want override", got)
	}
}

func TestEnvIntFallsBackOnMissingOrMalformed(t *testing.T) {
	clearEnv(t, "MF_TEST_INT")
	if got := envInt("MF_TEST_INT", 7); got != 7 {
		t.Errorf("envInt() unset = %d, want 7", got)
	}

	os.Setenv("MF_TEST_INT", "not-a-number")
	if got := envInt("MF_TEST_INT", 7); got != 7 {
		t.Errorf("envInt() malformed = %d, want fallback 7", got)
	}

	os.Setenv("MF_TEST_INT", "42")
	if got := envInt("MF_TEST_INT", 7); got != 42 {
		t.Errorf("envInt() = %d, want 42", got)
	}
}

func TestEnvFloatFallsBackOnMissingOrMalformed(t *testing.T) {
	clearEnv(t, "MF_TEST_FLOAT")
	if got := envFloat("MF_TEST_FLOAT", 1.5); got != 1.5 {
		t.Errorf("envFloat() unset = %v, want 1.5", got)
	}

	os.Setenv("MF_TEST_FLOAT", "garbage")
	if got := envFloat("MF_TEST_FLOAT", 1.5); got != 1.5 {
		t.Errorf("envFloat() malformed = %v, want fallback 1.5", got)
	}

	os.Setenv("MF_TEST_FLOAT", "0.03")
	if got := envFloat("MF_TEST_FLOAT", 1.5); got != 0.03 {
		t.Errorf("envFloat() = %v, want 0.03", got)
	}
}

func TestLoadDefaultsToProdKalshiURLs(t *testing.T) {
	clearEnv(t, "KALSHI_MODE", "KALSHI_BASE_URL", "KALSHI_WS_URL", "PROD_KEYID", "PROD_KEYFILE", "DEMO_KEYID", "DEMO_KEYFILE")

	c := Load()
	if c.KalshiMode != "prod" {
		t.Errorf("KalshiMode = %q, want prod by default", c.KalshiMode)
	}
	if c.KalshiBaseURL != "https://api.elections.kalshi.com" {
		t.Errorf("KalshiBaseURL = %q, want the prod base URL", c.KalshiBaseURL)
	}
	if c.KalshiWSURL != "wss://api.elections.kalshi.com/trade-api/ws/v2" {
		t.Errorf("KalshiWSURL = %q, want the prod ws URL", c.KalshiWSURL)
	}
}

func TestLoadDemoModeSelectsDemoURLsAndKeys(t *testing.T) {
	clearEnv(t, "KALSHI_MODE", "KALSHI_BASE_URL", "KALSHI_WS_URL", "PROD_KEYID", "PROD_KEYFILE", "DEMO_KEYID", "DEMO_KEYFILE")
	os.Setenv("KALSHI_MODE", "demo")
	os.Setenv("DEMO_KEYID", "demo-key-id")
	os.Setenv("DEMO_KEYFILE", "/tmp/demo.pem")
	os.Setenv("PROD_KEYID", "prod-key-id")

	c := Load()
	if c.KalshiBaseURL != "https://demo-api.kalshi.co" {
		t.Errorf("KalshiBaseURL = %q, want the demo base URL", c.KalshiBaseURL)
	}
	if c.KalshiWSURL != "wss://demo-api.kalshi.co/trade-api/ws/v2" {
		t.Errorf("KalshiWSURL = %q, want the demo ws URL", c.KalshiWSURL)
	}
	if c.KalshiKeyID != "demo-key-id" {
		t.Errorf("KalshiKeyID = %q, want the demo key id, not the prod one", c.KalshiKeyID)
	}
	if c.KalshiKeyFile != "/tmp/demo.pem" {
		t.Errorf("KalshiKeyFile = %q, want the demo key file", c.KalshiKeyFile)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearEnv(t, "MIN_EDGE_PCT", "MAX_GAMES_PER_SHARD", "INITIAL_BALANCE")
	os.Setenv("MIN_EDGE_PCT", "5.5")
	os.Setenv("MAX_GAMES_PER_SHARD", "40")
	os.Setenv("INITIAL_BALANCE", "2500")

	c := Load()
	if c.MinEdgePct != 5.5 {
		t.Errorf("MinEdgePct = %v, want 5.5", c.MinEdgePct)
	}
	if c.MaxGamesPerShard != 40 {
		t.Errorf("MaxGamesPerShard = %d, want 40", c.MaxGamesPerShard)
	}
	if c.InitialBalance != 2500 {
		t.Errorf("InitialBalance = %v, want 2500", c.InitialBalance)
	}
}

func TestDiscoveryIntervalAndShardTimeoutConvertToDuration(t *testing.T) {
	clearEnv(t, "DISCOVERY_INTERVAL_SEC", "SHARD_TIMEOUT_SEC")
	os.Setenv("DISCOVERY_INTERVAL_SEC", "45")
	os.Setenv("SHARD_TIMEOUT_SEC", "20")

	c := Load()
	if got := c.DiscoveryInterval(); got != 45*time.Second {
		t.Errorf("DiscoveryInterval() = %v, want 45s", got)
	}
	if got := c.ShardTimeout(); got != 20*time.Second {
		t.Errorf("ShardTimeout() = %v, want 20s", got)
	}
}
