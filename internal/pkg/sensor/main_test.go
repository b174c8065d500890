package sensor

import (
	"os"
	"testing"

	"github.com/gethiox/gyrostream/internal/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Drain()
	os.Exit(m.Run())
}
