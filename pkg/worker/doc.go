/*
Package worker provides the two long-lived loops that sit on either side of a
bounded queue.

# Producer

Producer pulls tasks from a types.Source and pushes them into the queue. It
stops when:
  - the source returns io.EOF
  - the context is cancelled while the source is blocked
  - the source fails and the configured error handler returns an error
  - the queue rejects a push because it is shutting down

A rejected task is handed to ProducerConfig.OnReject and never pushed again.

# Consumer

Consumer pops tasks and passes each to a types.Sink, optionally through a
retry.RetryExecutor. A failed task is logged and reported to the error
handler; the loop carries on with the next task. The loop ends only when Pop
reports that the queue is drained and shutting down. Panics raised by the
sink are recovered and reported as *types.TaskError values carrying the
stack trace.

Both loops run on the caller's goroutine via Run and expose atomic
statistics through Stats.
*/
package worker
