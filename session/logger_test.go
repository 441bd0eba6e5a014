package session

import (
	"log/slog"

	"github.com/mama165/sdk-go/logs"
)

func testLogger() *slog.Logger {
	// Reduce logging noise during fast-tick tests
	return logs.GetLoggerFromLevel(slog.LevelError)
}
