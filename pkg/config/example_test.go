package config_test

import (
	"fmt"

	"github.com/wonny/clv-retention/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("API port: %s\n", cfg.Port)
	fmt.Printf("Params: %s\n", cfg.Paths.ParamsFile)
	fmt.Printf("Reports: %s\n", cfg.Paths.ReportsDir)
}
