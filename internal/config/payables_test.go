package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smallbiznis/freightdesk/internal/payables/calc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writePayablesFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payables.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestPayablesConfigFromFile(t *testing.T) {
	path := writePayablesFile(t, `
payables:
  currency: usd
  defaultBirPercentage: 12
  grossIncomeOnAutoExit: Restore
  referenceTemplate: "APV-{YY}{MM}-{SEQ4}"
`)

	holder, err := NewPayablesConfigHolder(PayablesParams{
		Config: Config{PayablesConfigFile: path},
		Log:    zap.NewNop(),
	})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, 12.0, cfg.DefaultBIRPercentage)
	assert.Equal(t, "APV-{YY}{MM}-{SEQ4}", cfg.ReferenceTemplate)
	assert.Equal(t, calc.ExitRestore, holder.GrossIncomeExitPolicy())
}

func TestPayablesConfigPartialFileKeepsDefaults(t *testing.T) {
	path := writePayablesFile(t, `
payables:
  currency: PHP
`)

	holder, err := NewPayablesConfigHolder(PayablesParams{
		Config: Config{PayablesConfigFile: path},
		Log:    zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Equal(t, calc.ExitDiscard, holder.GrossIncomeExitPolicy())
	assert.Equal(t, DefaultPayablesConfig().ReferenceTemplate, holder.Get().ReferenceTemplate)
}

func TestPayablesConfigRejectsInvalidFile(t *testing.T) {
	cases := map[string]string{
		"policy":   "payables:\n  grossIncomeOnAutoExit: keep\n",
		"currency": "payables:\n  currency: pesos\n",
		"bir":      "payables:\n  defaultBirPercentage: 120\n",
		"template": "payables:\n  referenceTemplate: \"AP-{WEEK}\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewPayablesConfigHolder(PayablesParams{
				Config: Config{PayablesConfigFile: writePayablesFile(t, body)},
				Log:    zap.NewNop(),
			})
			assert.Error(t, err)
		})
	}
}

func TestStaticPayablesConfig(t *testing.T) {
	holder := NewStaticPayablesConfig(DefaultPayablesConfig())
	assert.Equal(t, calc.ExitDiscard, holder.GrossIncomeExitPolicy())
	assert.Equal(t, "PHP", holder.Get().Currency)
}
