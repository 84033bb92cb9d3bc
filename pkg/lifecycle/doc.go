// Package lifecycle wires a bounded queue, a producer and a consumer together
// and drives them through Created, Running, Draining and Terminated.
//
// Draining is entered exactly once, by Shutdown, by Run when its trigger
// fires or its context ends, by a producer failure, or by the producer
// finishing when DrainOnSourceEnd is set. Draining shuts the queue down, so
// the producer's next push is rejected while the consumer works through
// everything already queued. Terminated is reached after both loops have
// exited and the queue's backing store has been released.
//
//	orch, err := lifecycle.New[string](source, sink, lifecycle.Config[string]{Capacity: 10})
//	if err != nil {
//		return err
//	}
//	return orch.Run(ctx, stop)
package lifecycle
