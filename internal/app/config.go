package app

import "strings"

const fyneAppID = "studio.yashubu.newsclass"

// Threshold marks a prediction for review when the top probability or its
// margin over the runner-up falls below these values.
type Threshold struct {
	Top1     float32 // e.g. 0.45
	Margin12 float32 // e.g. 0.05
}

// Config holds the desktop UI settings.
type Config struct {
	TopK   int
	Thresh Threshold
	// RunConfigPath is the run config whose vocabulary and checkpoint are loaded.
	RunConfigPath string
}

func defaultConfig() Config {
	return Config{
		TopK:   3,
		Thresh: Threshold{Top1: 0.45, Margin12: 0.05},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.TopK < 1 {
		cfg.TopK = 1
	}
	if cfg.TopK > 5 {
		cfg.TopK = 5
	}
	if cfg.Thresh.Top1 <= 0 {
		cfg.Thresh.Top1 = 0.45
	}
	if cfg.Thresh.Margin12 < 0 {
		cfg.Thresh.Margin12 = 0.05
	}
	cfg.RunConfigPath = strings.TrimSpace(cfg.RunConfigPath)
	return cfg
}
