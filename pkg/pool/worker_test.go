package pool

import (
	"testing"

	"github.com/nqb9811/worker-pool/internal/testutil"
)

func TestPostTaskRejectsFullInbox(t *testing.T) {
	w := &Worker{id: 1, inbox: make(chan TaskMessage, 1)}

	testutil.AssertNoError(t, w.postTask(TaskMessage{Type: "a"}))
	testutil.AssertErrorIs(t, w.postTask(TaskMessage{Type: "b"}), errInboxFull)
}

func TestPostTaskRejectsDeadWorker(t *testing.T) {
	w := &Worker{id: 1, inbox: make(chan TaskMessage, 1)}
	w.terminate()
	testutil.AssertErrorIs(t, w.postTask(TaskMessage{Type: "a"}), errWorkerDead)
}

func TestTerminateIdempotent(t *testing.T) {
	w := &Worker{id: 1, inbox: make(chan TaskMessage, 1)}
	w.terminate()
	w.terminate()
	testutil.AssertEqual(t, w.dead, true)
}

func TestAbortFlag(t *testing.T) {
	var f AbortFlag
	testutil.AssertEqual(t, f.Raised(), false)
	f.Set()
	testutil.AssertEqual(t, f.Raised(), true)
	f.Set()
	testutil.AssertEqual(t, f.Raised(), true)
}

func TestCompletionResolvesOnce(t *testing.T) {
	c := newCompletion()
	c.resolve(42)
	c.fail(ErrAborted)
	c.resolve(43)

	<-c.Done()
	data, err := c.Result()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, data.(int), 42)
}
