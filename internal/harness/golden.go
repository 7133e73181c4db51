package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a script and compares its final export against a
// golden file stored in testdata/golden/{script.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if script execution fails. Step and assertion failures
// are reported through t.
func RunWithGolden(t *testing.T, script *Script, opts ...Option) error {
	t.Helper()

	result, err := Run(script, opts...)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", script.Name, msg)
	}

	AssertGolden(t, script.Name, result)
	return nil
}

// AssertGolden compares a result's export against a golden file without
// re-running the script.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(result.Export+"\n"))
}
