package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/messagestack/apiserver/types"
	"gopkg.in/yaml.v3"
)

type PrivacyConfig struct {
	// SettingsFile is an optional YAML file with default and per-survey
	// privacy settings.
	SettingsFile string
}

// PrivacySettingsFile is the YAML layout of PRIVACY_SETTINGS_FILE.
//
//	defaults:
//	  allow_ai_processing: true
//	  anonymize_responses: true
//	surveys:
//	  brand-perception-2026:
//	    allow_public_insights: true
type PrivacySettingsFile struct {
	Defaults types.PrivacySettings            `yaml:"defaults"`
	Surveys  map[string]types.PrivacySettings `yaml:"surveys"`
}

// DefaultPrivacySettings is used when no settings file is configured.
func DefaultPrivacySettings() types.PrivacySettings {
	return types.PrivacySettings{
		AllowAIProcessing:   true,
		AllowPublicInsights: false,
		AllowDataRetention:  true,
		RetentionPeriodDays: 365,
		AnonymizeResponses:  true,
	}
}

// PrivacySettingsSource resolves the privacy settings for a survey.
type PrivacySettingsSource struct {
	defaults types.PrivacySettings
	surveys  map[string]types.PrivacySettings
}

// LoadPrivacySettings reads the configured settings file. An empty path
// yields DefaultPrivacySettings for every survey.
func LoadPrivacySettings(path string) (*PrivacySettingsSource, error) {
	src := &PrivacySettingsSource{defaults: DefaultPrivacySettings()}
	if strings.TrimSpace(path) == "" {
		return src, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read privacy settings: %w", err)
	}
	return ParsePrivacySettings(data)
}

// ParsePrivacySettings parses the YAML layout of PrivacySettingsFile.
func ParsePrivacySettings(data []byte) (*PrivacySettingsSource, error) {
	file := PrivacySettingsFile{Defaults: DefaultPrivacySettings()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse privacy settings: %w", err)
	}
	if file.Defaults.RetentionPeriodDays <= 0 {
		file.Defaults.RetentionPeriodDays = DefaultPrivacySettings().RetentionPeriodDays
	}
	return &PrivacySettingsSource{defaults: file.Defaults, surveys: file.Surveys}, nil
}

// For returns the settings for surveyID, falling back to the defaults.
func (s *PrivacySettingsSource) For(surveyID string) types.PrivacySettings {
	if settings, ok := s.surveys[surveyID]; ok {
		if settings.RetentionPeriodDays <= 0 {
			settings.RetentionPeriodDays = s.defaults.RetentionPeriodDays
		}
		return settings
	}
	return s.defaults
}
