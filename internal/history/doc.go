// Package history records operations issued against guarded stores and
// checks recorded histories for linearizability.
//
// Every recorded operation carries four logical stamps from one shared
// clock:
//
//	Invoke  - taken by the caller before it asks the store for admission
//	Acquire - taken first thing inside the critical section
//	Release - taken last thing inside the critical section
//	Return  - taken by the caller after the store returned
//
// Because Acquire and Release are taken while the store is held, the
// [Acquire, Release] sections of one store never overlap and their order is
// the order in which the store applied the operations. A history is
// linearizable when those sections are disjoint, nested inside their
// [Invoke, Return] intervals, and replaying the operations sequentially in
// section order reproduces every observed result.
//
// Operations that were never admitted (their context ended first) are
// recorded with Acquire == 0 and must have had no effect.
package history
