// Package loop drives an agent through a module's work tree.
//
// Each iteration picks the focus task, evaluates the guardrail pipeline,
// pauses for a human on a Block, runs one agent turn and applies what the
// agent reported: verification requests go to the oracle and status tool
// calls go through the completion gate. When every task under a component
// or module is complete the loop closes that node, again through the
// pipeline, so nothing is marked complete without a passing verdict.
//
// Helper functions for progress tracking (DetectStuck, CalculateProgress,
// ProgressRate) are exported for the CLI and tests.
package loop
