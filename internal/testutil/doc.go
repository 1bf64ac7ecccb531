// Package testutil provides shared test utilities for gantry.
//
// # Fixtures
//
// The fixtures.go file provides sample data:
//
//   - SamplePlanYAML - a plan document with two components and three tasks
//   - SamplePlan() - the parsed plan, fresh on every call
//   - SampleHistory(), SampleHistoryStuck() - history entries
//
// # Environment Helpers
//
// The env.go file provides test environment setup:
//
//   - SetupTestDir(t) - creates a temp directory with .gantry/config.yaml
//   - SetupTestDirWithConfig(t, fn) - the same, after fn edits the config
//   - ImportSamplePlan(t, store) - creates the sample session
//   - MustMarshalJSON(t, v), MustUnmarshalJSON(t, data, v)
//   - WriteTestFile(t, base, path, content) - writes a file in test dir
//
// # Assertions
//
// The assertions.go file provides custom test assertions:
//
//   - AssertTaskState(t, m, task, state) - own state of a task
//   - AssertAggregateState(t, n, state) - derived state of any node
//   - AssertTally(t, m, complete, total) - complete nodes in a tree
//   - AssertHistoryLength(t, history, n), AssertHistoryProgress(t, history, completed)
//
// # Usage
//
//	func TestSomething(t *testing.T) {
//	    dir, store := testutil.SetupTestDir(t)
//	    plan := testutil.ImportSamplePlan(t, store)
//	    // ... run test ...
//	}
package testutil
