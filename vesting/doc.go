// Package vesting implements token vesting contracts: a Merkle-authorized
// cliff plus linear vesting pool, and two milestone variants where an owner
// releases slices of a pool by marking milestones complete.
//
// Contracts hold no locks. Callers serialize operations on one instance and
// provide the atomic unit of work around each call.
package vesting
