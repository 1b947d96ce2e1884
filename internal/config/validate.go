package config

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"convertbot/internal/catalog"
)

// Validate ensures the configuration is usable. The Telegram token is checked
// separately by ValidateTelegram so offline commands work without one.
func (c *Config) Validate() error {
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateTranscoder(); err != nil {
		return err
	}
	if err := c.validateStaging(); err != nil {
		return err
	}
	if err := c.validateTelegramTimings(); err != nil {
		return err
	}
	return nil
}

// ValidateTelegram checks the settings required to talk to the Bot API.
func (c *Config) ValidateTelegram() error {
	err := validation.ValidateStruct(&c.Telegram,
		validation.Field(&c.Telegram.BotToken,
			validation.Required.Error("is required; set TELEGRAM_BOT_TOKEN or edit the config file"),
		),
		validation.Field(&c.Telegram.APIBaseURL, validation.Required, is.URL),
		validation.Field(&c.Telegram.AllowedChatIDs, validation.Each(validation.NotIn(int64(0)).Error("chat id 0 is not valid"))),
	)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

func (c *Config) validateConversion() error {
	if len(c.Conversion.EnabledPairs) == 0 {
		return errors.New("conversion.enabled_pairs must include at least one pair")
	}
	if _, err := catalog.New(c.Conversion.EnabledPairs); err != nil {
		return fmt.Errorf("conversion.enabled_pairs: %w", err)
	}
	return nil
}

func (c *Config) validateTranscoder() error {
	if c.Transcoder.TimeoutSeconds <= 0 {
		return errors.New("transcoder.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateStaging() error {
	if c.Staging.StaleAfterMinutes < 0 {
		return errors.New("staging.stale_after_minutes must be >= 0")
	}
	if c.Staging.MinFreeMiB < 0 {
		return errors.New("staging.min_free_mib must be >= 0")
	}
	return nil
}

func (c *Config) validateTelegramTimings() error {
	if err := ensurePositiveMap(map[string]int{
		"telegram.poll_timeout_seconds":    c.Telegram.PollTimeoutSeconds,
		"telegram.request_timeout_seconds": c.Telegram.RequestTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Telegram.RequestTimeoutSeconds <= c.Telegram.PollTimeoutSeconds {
		return errors.New("telegram.request_timeout_seconds must be greater than telegram.poll_timeout_seconds")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
