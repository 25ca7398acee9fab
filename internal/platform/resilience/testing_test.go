package resilience

import "github.com/scigraph/scigraph-backend/internal/platform/logger"

func testLogger() *logger.Logger { return logger.NewNop() }
