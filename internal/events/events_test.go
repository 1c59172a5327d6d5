package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	var seen []string
	boom := errors.New("boom")

	m := Multi{rec, Func(func(e Event) { seen = append(seen, e.Type) }), failing{boom}, Nop{}}
	err := m.Publish(context.Background(), Event{Type: TestStarted, Test: "login.txt"})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{TestStarted}, rec.Types())
	assert.Equal(t, []string{TestStarted}, seen)
	assert.Equal(t, "login.txt", rec.Events()[0].Test)
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, Multi{}.Publish(context.Background(), Event{Type: RunFinished}))
}

func TestNATSSink_Subject(t *testing.T) {
	s := &NATSSink{subject: "qarun.events"}
	assert.Equal(t, "qarun.events.step_finished", s.Subject(Event{Type: StepFinished}))
}
