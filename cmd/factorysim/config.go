package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"factorysim.ai/internal/sim/catalogs"
	"factorysim.ai/internal/sim/tuning"
)

func resolvedTuningPath() string {
	if p := strings.TrimSpace(tuningPath); p != "" {
		return p
	}
	return filepath.Join(configDir, "tuning.yaml")
}

// loadConfig reads catalogs and tuning. A missing tuning file falls back to defaults.
func loadConfig() (*catalogs.Catalogs, tuning.Tuning, error) {
	cats, err := catalogs.Load(configDir)
	if err != nil {
		return nil, tuning.Tuning{}, fmt.Errorf("load catalogs: %w", err)
	}
	tune, err := tuning.Load(resolvedTuningPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, tuning.Tuning{}, fmt.Errorf("load tuning: %w", err)
		}
		tune = tuning.Defaults()
	}
	return cats, tune, nil
}
