package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestTemplateParsesAsYAML(t *testing.T) {
	var raw map[string]any
	err := yaml.Unmarshal([]byte(templateConfig), &raw)
	assert.NoError(t, err, "templateConfig must be valid YAML")

	v := viper.New()
	v.SetConfigType("yaml")
	err = v.ReadConfig(strings.NewReader(templateConfig))
	assert.NoError(t, err, "expected no error while reading config")

	var cfg Config
	err = v.Unmarshal(&cfg)
	assert.NoError(t, err, "expected no error while unmarshalling config")

	assert.False(t, cfg.SystemMode)
	assert.False(t, cfg.ForceTmp)
	assert.True(t, cfg.Notify)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestTemplateMatchesDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	err := v.ReadConfig(strings.NewReader(templateConfig))
	assert.NoError(t, err, "expected no error while reading config")

	var parsed Config
	err = v.Unmarshal(&parsed)
	assert.NoError(t, err, "expected no error while unmarshalling config")

	assert.Equal(t, DefaultConfig(), parsed)
}
