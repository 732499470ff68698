package expr

import (
	"testing"

	"github.com/sebdah/goldie"
)

// assertGolden wraps goldie.Assert so compiler/parser snapshot tests
// all read the same way.
func assertGolden(t *testing.T, name, actual string) {
	t.Helper()
	goldie.Assert(t, name, []byte(actual))
}
