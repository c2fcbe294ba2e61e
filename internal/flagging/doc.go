// Package flagging records citizen flags on budget records and escalates
// records whose flag ratio crosses a population-relative threshold.
//
// The Aggregator inserts one flag per (record, user) and computes
//
//	ratio = round(flags / max(1, citizens in partition) * 100, 2)
//
// with exact decimal arithmetic. The Engine turns a tally into at most one
// pending escalation per record. Both are stateless; the caller runs
// Aggregator.Add followed by Engine.Evaluate inside one critical section per
// record so two concurrent crossings cannot both create an escalation.
package flagging
