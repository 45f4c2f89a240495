// Package harness runs import scenarios end to end: simulated devices,
// real transport bridge, real decoder, real store, real session loop.
//
// A scenario is a YAML file declaring devices with recorded dives and a
// sequence of import runs against them. The harness executes the runs in
// order over one shared in-memory database, recording every session state
// transition. The recorded trace is fully deterministic (fixed dive ids,
// no wall-clock fields), so scenarios are verified two ways:
//
//   - expectations declared inline in the scenario file
//   - golden-file comparison of the full transition trace
//
// Golden files live in testdata/golden and are regenerated with:
//
//	go test ./internal/harness -update
package harness
