package main

import (
	"fmt"

	"github.com/mattn/go-colorable"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func getLogger(config *viper.Viper) *zap.Logger {
	opts := []zap.Option{
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	var logger *zap.Logger
	var err error
	if config.GetBool("debug") {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(colorable.NewColorableStdout()),
			zapcore.DebugLevel,
		), append(opts, zap.AddCaller(), zap.Development())...)
	} else {
		logger, err = zap.NewProduction(opts...)
		if err != nil {
			panic(fmt.Sprintf("failed to build logger: %v", err))
		}
	}
	return logger.With(zap.String("version", version))
}
