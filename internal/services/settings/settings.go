package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/hello-drektopia/redditbot-go/internal/models"
	"github.com/hello-drektopia/redditbot-go/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// StorageKey holds the operator overrides as a JSON object
const StorageKey = "app_settings"

// KV is the subset of storage the provider needs
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Update(ctx context.Context, key string, fn storage.UpdateFunc) error
}

// Provider loads AppSettings fresh on every call: static defaults overlaid with stored overrides
type Provider struct {
	kv       KV
	defaults models.AppSettings
	logger   *logrus.Logger
}

// NewProvider creates a settings provider
func NewProvider(kv KV, defaults models.AppSettings, logger *logrus.Logger) *Provider {
	return &Provider{
		kv:       kv,
		defaults: defaults,
		logger:   logger,
	}
}

// Raw returns the merged settings without checking the killswitch
func (p *Provider) Raw(ctx context.Context) (*models.AppSettings, error) {
	current := p.defaults

	data, ok, err := p.kv.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if ok && data != "" {
		if err := json.Unmarshal([]byte(data), &current); err != nil {
			return nil, fmt.Errorf("%w: stored settings are not valid JSON: %v", models.ErrConfiguration, err)
		}
	}

	return &current, nil
}

// Load returns validated settings. It fails fast when the acceptance killswitch is off.
func (p *Provider) Load(ctx context.Context) (*models.AppSettings, error) {
	s, err := p.Raw(ctx)
	if err != nil {
		return nil, err
	}

	if err := Validate(s); err != nil {
		return nil, err
	}

	if !s.Acceptance {
		return nil, fmt.Errorf("%w: check the settings for important configuration details", models.ErrConfiguration)
	}

	return s, nil
}

// Update merges patch into the stored overrides after validating the result.
// Keys that name no setting are rejected.
func (p *Provider) Update(ctx context.Context, patch map[string]interface{}) (*models.AppSettings, error) {
	var merged models.AppSettings

	err := p.kv.Update(ctx, StorageKey, func(current string, exists bool) (string, error) {
		overrides := map[string]interface{}{}
		if exists && current != "" {
			if err := json.Unmarshal([]byte(current), &overrides); err != nil {
				return "", fmt.Errorf("%w: stored settings are not valid JSON: %v", models.ErrConfiguration, err)
			}
		}
		for k, v := range patch {
			overrides[k] = v
		}

		data, err := json.Marshal(overrides)
		if err != nil {
			return "", err
		}

		merged = p.defaults
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&merged); err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrConfiguration, err)
		}
		if err := Validate(&merged); err != nil {
			return "", err
		}

		return string(data), nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.WithField("keys", len(patch)).Info("Settings updated")
	return &merged, nil
}

// Validate checks ranges
func Validate(s *models.AppSettings) error {
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("%w: temperature should be between 0 and 2", models.ErrConfiguration)
	}
	for name, v := range map[string]int{
		"maxhour":                s.MaxPerHour,
		"maxday":                 s.MaxPerDay,
		"maxcharacters":          s.MaxCharacters,
		"summarizationthreshold": s.SummarizationThreshold,
	} {
		if v < 0 {
			return fmt.Errorf("%w: a negative number doesn't make sense for %s", models.ErrConfiguration, name)
		}
	}
	if s.ChanceOf < 0 || s.ChanceOf > 100 || math.IsNaN(s.ChanceOf) {
		return fmt.Errorf("%w: chanceof should be a number 0 to 100", models.ErrConfiguration)
	}
	if s.Acceptance && (s.Key == "" || s.Model == "") {
		return fmt.Errorf("%w: api key and model are required", models.ErrConfiguration)
	}
	return nil
}
