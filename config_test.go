package atlastt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.RemoveDuplicates)
	assert.Equal(t, 10.0, cfg.TrueRulerClkPeriod)
	assert.False(t, cfg.AutoSetRulerClk)
	assert.Equal(t, CorrectionUncorrected, cfg.Correction)
	assert.Equal(t, 75.0, cfg.LoopbackLocation)
	assert.Equal(t, 100.0, cfg.LoopbackWidth)
	assert.Equal(t, 18.0, cfg.TepLocation)
	assert.Equal(t, 5.0, cfg.TepWidth)
	assert.True(t, cfg.BlockTep)
	assert.Equal(t, int64(0), cfg.BuildUpMfc)
}

func TestLoadConfigParsesKeyValuePairs(t *testing.T) {
	src := strings.Join([]string{
		"# a comment",
		"",
		"removeduplicates=false",
		"truerulerclkperiod=9.96",
		"correction=LOOPBACK",
		"buildupmfc=12345",
	}, "\n")

	cfg, err := LoadConfig(strings.NewReader(src))
	require.NoError(t, err)
	assert.False(t, cfg.RemoveDuplicates)
	assert.InDelta(t, 9.96, cfg.TrueRulerClkPeriod, 1e-9)
	assert.Equal(t, CorrectionLoopback, cfg.Correction)
	assert.Equal(t, int64(12345), cfg.BuildUpMfc)
}

func TestLoadConfigSkipsUnknownKeysWithoutFailing(t *testing.T) {
	src := "somefuturekey=1\ntruerulerclkperiod=11.0\n"
	cfg, err := LoadConfig(strings.NewReader(src))
	require.NoError(t, err)
	assert.InDelta(t, 11.0, cfg.TrueRulerClkPeriod, 1e-9)
}

func TestLoadConfigRejectsMalformedLine(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("nosignsign\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigParse)
}

func TestLoadConfigParsesChannelDisableList(t *testing.T) {
	values := make([]string, NumChannels)
	for i := range values {
		if i == 4 {
			values[i] = "true"
		} else {
			values[i] = "false"
		}
	}
	src := "channeldisable=" + strings.Join(values, ",")

	cfg, err := LoadConfig(strings.NewReader(src))
	require.NoError(t, err)
	assert.True(t, cfg.ChannelDisable[5])
	assert.False(t, cfg.ChannelDisable[1])
}

func TestLoadConfigChannelDisableWrongCountErrors(t *testing.T) {
	_, err := LoadConfig(strings.NewReader("channeldisable=true,false"))
	require.Error(t, err)
}

func TestApplyConfigFieldUnknownKey(t *testing.T) {
	cfg := DefaultConfig()
	err := applyConfigField(&cfg, "bogus", "1")
	assert.ErrorIs(t, err, ErrUnknownConfigKey)
}
