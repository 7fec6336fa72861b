// Package campaign implements the campaign lifecycle state machine.
//
// The service layer owns all transition rules and data invariants for a
// campaign record: edge legality, the nextCallDate/terminal-status exclusion,
// the bounded message history, and outcome policy. It depends on the
// repository contract defined in this package and never on a concrete store;
// every mutation flows through Repository.ApplyAtomic so concurrent writers
// on the same campaign serialize to one winner and one conflict.
//
// Repository implementations live in repository/postgres/.
package campaign
