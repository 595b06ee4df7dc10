package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivan-andreyev/agent-orchestra/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify orchestra configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/orchestra/config.yaml
Project-specific overrides can be placed in .orchestra.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			cfg *config.Config
			err error
		)
		if configPath != "" {
			cfg, err = config.LoadFromPath(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		switch len(args) {
		case 0:
			for _, line := range configLines(cfg) {
				fmt.Println(line)
			}
			return nil
		case 1:
			value, err := displayValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		default:
			return setConfigKey(cfg, args[0], args[1])
		}
	},
}

// configLines renders every key as "key: value" with secrets masked.
func configLines(cfg *config.Config) []string {
	keys := config.Keys()
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		value, err := displayValue(cfg, key)
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", key, value))
	}
	return lines
}

// displayValue returns a key's value, masking secrets.
func displayValue(cfg *config.Config, key string) (string, error) {
	value, err := config.Get(cfg, key)
	if err != nil {
		return "", err
	}
	if config.IsSecretKey(key) {
		return config.MaskAPIKey(value), nil
	}
	return value, nil
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) error {
	if err := config.Set(cfg, key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("not saved: %w", err)
	}

	save := config.Save
	if configPath != "" {
		save = func(c *config.Config) error { return config.SaveTo(c, configPath) }
	}
	if err := save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	shown, _ := displayValue(cfg, key)
	fmt.Printf("Set %s = %s\n", key, shown)
	return nil
}
