// Package harness runs scripted ledger scenarios and records a
// deterministic trace of their outcomes.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: flag_escalation
//	description: "Sixth flag out of ten citizens escalates"
//	threshold: "50"
//	actors:
//	  - { id: chair-1, role: chairman, partition: 1 }
//	citizens:
//	  - { partition: 1, count: 10 }
//	steps:
//	  - append:
//	      actor: chair-1
//	      draft: { project_code: KRB-001, ... }
//	  - flag: { record: KRB-001, user: citizen-1-01 }
//	    expect: { flags: 1, ratio: "10.00" }
//	  - tamper: { record: KRB-001, column: ward, value: moved }
//	  - verify: { partition: 1 }
//	    expect: { valid: false, violations: ["KRB-001: hash mismatch"] }
//
// Each step performs exactly one of append, flag, verify, tamper or actor.
// Records are named by project code. A step without expect must succeed;
// expect.error names the error code a step must fail with.
//
// # Determinism
//
// Every run uses a fresh SQLite database, a clock stepping one second per
// reading from testutil.Epoch and sequential ids, so the trace of a given
// scenario never changes and can be compared with RunWithGolden.
package harness
