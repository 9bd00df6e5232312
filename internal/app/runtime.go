package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// testModeEnv, when set to a true value, makes the binaries exit before
// touching the network.
const testModeEnv = "ODYSSEY_TEST_MODE"

// testMode caches the parsed environment. nil means not read yet.
var testMode atomic.Pointer[bool]

func readTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	on = err == nil && on
	testMode.Store(&on)
	return on
}

// InTestMode reports whether ODYSSEY_TEST_MODE is enabled.
func InTestMode() bool {
	if cached := testMode.Load(); cached != nil {
		return *cached
	}
	return readTestMode()
}

// RefreshTestMode re-reads ODYSSEY_TEST_MODE after the environment changed.
func RefreshTestMode() {
	readTestMode()
}
