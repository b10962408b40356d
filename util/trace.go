package util

import (
	"time"

	"go.uber.org/zap"
)

// Trace 记录一段代码的耗时，用法：defer util.Trace("step")()
func Trace(msg string) func() {
	start := time.Now()
	return func() {
		zap.L().Debug(msg, zap.Duration("elapsed", time.Since(start)))
	}
}
