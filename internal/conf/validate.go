package conf

import (
	"encoding/base64"
	"fmt"
)

// ValidateSettings checks that the loaded settings are internally consistent.
func ValidateSettings(settings *Settings) error {
	if settings.Worker.Command == "" {
		return fmt.Errorf("worker.command must not be empty")
	}
	if settings.Worker.TopK < 1 {
		return fmt.Errorf("worker.topk must be at least 1, got %d", settings.Worker.TopK)
	}
	if settings.Worker.TimeoutSeconds < 1 {
		return fmt.Errorf("worker.timeoutseconds must be at least 1, got %d", settings.Worker.TimeoutSeconds)
	}

	if settings.Triage.Threshold < 0 || settings.Triage.Threshold > 1 {
		return fmt.Errorf("triage.threshold must be within [0, 1], got %f", settings.Triage.Threshold)
	}

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return fmt.Errorf("no database backend enabled, enable output.sqlite or output.mysql")
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		return fmt.Errorf("output.sqlite.path must not be empty")
	}

	if settings.Security.DataKey != "" {
		key, err := base64.StdEncoding.DecodeString(settings.Security.DataKey)
		if err != nil {
			return fmt.Errorf("security.datakey is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("security.datakey must decode to 32 bytes, got %d", len(key))
		}
	}

	return nil
}
