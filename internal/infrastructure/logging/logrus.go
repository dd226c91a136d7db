package logging

import (
	"strings"

	"banksystem/internal/config"

	"github.com/sirupsen/logrus"
)

// Init 根据配置初始化全局 logrus
func Init(cfg *config.LogConfig) {
	if strings.EqualFold(cfg.Format, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
