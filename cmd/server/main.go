package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"opsflow/internal/app"
	"opsflow/internal/config"
)

func main() {
	// Read ./config.yml if present; env vars override.
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()
	if err := app.Run(cfg); err != nil {
		logrus.Fatalf("opsflow: %v", err)
	}
}
