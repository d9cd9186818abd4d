package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SESSION_TTL", "")
	t.Setenv("TAX_RATE", "")
	t.Setenv("DELIVERY_FEES", "")

	cfg := Load()
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.True(t, cfg.TaxRate.IsZero())
	assert.Equal(t, "0.7", cfg.CostRatio.String())
	assert.Empty(t, cfg.DeliveryFees)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("HISTORY_LIMIT", "nope")
	t.Setenv("TAX_RATE", "0.05")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("DELIVERY_FEES", "Dubai:1500, sharjah:2000,broken,ajman:-1")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, "0.05", cfg.TaxRate.String())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, map[string]int64{"dubai": 1500, "sharjah": 2000}, cfg.DeliveryFees)
}
