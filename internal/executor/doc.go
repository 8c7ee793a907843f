// Package executor walks one run's job graph concurrently. A fixed worker
// pool consumes a ready channel seeded with the root jobs; finishing a job
// decrements its dependents' unmet-dependency counters and enqueues any that
// reach zero. Whether a dequeued job actually runs is decided at dequeue
// time from its dependencies' outcomes and its `if` condition, so failure
// in one branch never stops independent branches.
package executor
