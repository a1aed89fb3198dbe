package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DBMaxConns:               25,
		DBMinConns:               5,
		AdminIDs:                 []int64{42},
		BattleFeePercent:         10,
		BattleDefaultEntryFee:    50,
		RedemptionConversionRate: 10,
		RedemptionEvidenceSample: 100,
		RedemptionEvidenceRecent: 10,
		AbuseWeightLow:           1,
		AbuseWeightMedium:        3,
		AbuseWeightHigh:          5,
		AbuseWeightCritical:      10,
		RateLimitRequests:        120,
		OutboxBatchSize:          100,
	}
}

func Test_Config_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no admins", func(c *Config) { c.AdminIDs = nil }},
		{"min conns above max", func(c *Config) { c.DBMinConns = 30 }},
		{"battle fee over 100", func(c *Config) { c.BattleFeePercent = 101 }},
		{"zero entry fee", func(c *Config) { c.BattleDefaultEntryFee = 0 }},
		{"zero conversion rate", func(c *Config) { c.RedemptionConversionRate = 0 }},
		{"negative redemption fee", func(c *Config) { c.RedemptionFeePercent = -1 }},
		{"recent above sample", func(c *Config) { c.RedemptionEvidenceRecent = 200 }},
		{"zero weight", func(c *Config) { c.AbuseWeightHigh = 0 }},
		{"zero outbox batch", func(c *Config) { c.OutboxBatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func Test_Config_finish(t *testing.T) {
	c := &Config{AdminIDsRaw: " 1, 2 ,,3 ", KafkaBrokersRaw: "k1:9092, k2:9092"}
	require.NoError(t, c.finish())
	require.Equal(t, []int64{1, 2, 3}, c.AdminIDs)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	require.True(t, c.IsAdmin(2))
	require.False(t, c.IsAdmin(4))

	bad := &Config{AdminIDsRaw: "1,abc"}
	require.Error(t, bad.finish())
}

func Test_Config_MigrateDSN(t *testing.T) {
	c := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: 5432, DBName: "d", DBSSLMode: "disable"}
	require.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.DatabaseDSN())
	require.Equal(t, "pgx5://u:p@h:5432/d?sslmode=disable", c.MigrateDSN())
}
