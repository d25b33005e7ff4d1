// Package pending holds actions waiting on a response from the server.
package pending

// Tag identifies the kind of response an action waits for.
type Tag string

// Queue is a queue of actions waiting on server responses.
// It is not safe for concurrent use.
type Queue struct {
	waits []wait
}

type wait struct {
	tag Tag
	run func(any)
}

// Add queues run to be called with the payload of the next response
// matching tag.
func (q *Queue) Add(tag Tag, run func(any)) {
	q.waits = append(q.waits, wait{tag: tag, run: run})
}

// Fire runs and removes every action waiting on tag, in the order they were
// added. Actions waiting on other tags are untouched. Actions added while
// firing wait for the next response. The result is the number of actions
// run.
func (q *Queue) Fire(tag Tag, payload any) int {
	var run []func(any)
	keep := q.waits[:0]
	for _, w := range q.waits {
		if w.tag == tag {
			run = append(run, w.run)
			continue
		}
		keep = append(keep, w)
	}
	clear(q.waits[len(keep):])
	q.waits = keep
	for _, f := range run {
		f(payload)
	}
	return len(run)
}

// Len returns the number of waiting actions.
func (q *Queue) Len() int {
	return len(q.waits)
}
