package outlook

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSession struct {
	appts  []Appointment
	err    error
	closed bool
}

func (s *fakeSession) appointments(w Window) ([]Appointment, error) { return s.appts, s.err }
func (s *fakeSession) close()                                       { s.closed = true }

// fakeAutomation scripts the host surface: each call pops the next result.
type fakeAutomation struct {
	running bool

	startErr  error
	starts    int
	attachSeq []error
	attaches  int
	createSeq []error
	creates   int
	session   *fakeSession

	// comesUp makes startHost bring the host online, like the real launch.
	comesUp bool
}

func (a *fakeAutomation) hostRunning() bool { return a.running }

func (a *fakeAutomation) startHost() error {
	a.starts++
	if a.comesUp {
		a.running = true
	}
	return a.startErr
}

func (a *fakeAutomation) attach() (session, error) {
	var err error
	if a.attaches < len(a.attachSeq) {
		err = a.attachSeq[a.attaches]
	}
	a.attaches++
	if err != nil {
		return nil, err
	}
	return a.session, nil
}

func (a *fakeAutomation) createInstance() (session, error) {
	var err error
	if a.creates < len(a.createSeq) {
		err = a.createSeq[a.creates]
	}
	a.creates++
	if err != nil {
		return nil, err
	}
	return a.session, nil
}

func fastConnector(auto automation) *connector {
	c := newConnector(auto, nil)
	c.hostWait = 50 * time.Millisecond
	c.probeInterval = time.Millisecond
	c.createBackoff = time.Millisecond
	c.attachWait = time.Millisecond
	return c
}

func testWindow() Window {
	return Window{
		From: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchAttachesToRunningHost(t *testing.T) {
	sess := &fakeSession{appts: []Appointment{{Subject: "One"}}}
	auto := &fakeAutomation{running: true, session: sess}
	c := fastConnector(auto)

	appts, err := c.fetch(context.Background(), testWindow())
	if err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if len(appts) != 1 || appts[0].Subject != "One" {
		t.Errorf("appts = %+v", appts)
	}
	if auto.starts != 0 {
		t.Errorf("host launched %d times despite running", auto.starts)
	}
	if !sess.closed {
		t.Error("session not closed after fetch")
	}
}

func TestFetchLaunchesAbsentHost(t *testing.T) {
	sess := &fakeSession{}
	auto := &fakeAutomation{running: false, comesUp: true, session: sess}
	c := fastConnector(auto)

	if _, err := c.fetch(context.Background(), testWindow()); err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if auto.starts != 1 {
		t.Errorf("starts = %d, want 1", auto.starts)
	}
}

func TestFetchHostNeverComesUp(t *testing.T) {
	auto := &fakeAutomation{running: false}
	c := fastConnector(auto)
	c.attachAttempts = 1

	_, err := c.fetch(context.Background(), testWindow())
	if !errors.Is(err, ErrHostUnavailable) {
		t.Errorf("error = %v, want ErrHostUnavailable", err)
	}
}

func TestCreateInstanceRetriesStartupRace(t *testing.T) {
	raceErr := errors.New("Server execution failed")
	sess := &fakeSession{}
	auto := &fakeAutomation{
		running:   true,
		attachSeq: []error{errors.New("no object")},
		createSeq: []error{raceErr, raceErr, nil},
		session:   sess,
	}
	c := fastConnector(auto)

	if _, err := c.fetch(context.Background(), testWindow()); err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if auto.creates != 3 {
		t.Errorf("creates = %d, want 3", auto.creates)
	}
}

func TestCreateInstanceGivesUpOnOtherErrors(t *testing.T) {
	permanent := errors.New("class not registered")
	auto := &fakeAutomation{
		running:   true,
		attachSeq: []error{errors.New("no object"), errors.New("no object")},
		createSeq: []error{permanent},
	}
	c := fastConnector(auto)
	c.attachAttempts = 1

	_, err := c.fetch(context.Background(), testWindow())
	if !errors.Is(err, ErrHostUnavailable) {
		t.Fatalf("error = %v, want ErrHostUnavailable", err)
	}
	if auto.creates != 1 {
		t.Errorf("creates = %d, want 1 (no retry on permanent error)", auto.creates)
	}
}

func TestConnectFinalProbeAfterCreateFailure(t *testing.T) {
	sess := &fakeSession{}
	auto := &fakeAutomation{
		running: true,
		// First attach fails, create fails outright, the final probe attach
		// succeeds because the host finished starting meanwhile.
		attachSeq: []error{errors.New("no object"), nil},
		createSeq: []error{errors.New("class not registered")},
		session:   sess,
	}
	c := fastConnector(auto)

	if _, err := c.fetch(context.Background(), testWindow()); err != nil {
		t.Fatalf("fetch() error = %v", err)
	}
	if auto.attaches != 2 {
		t.Errorf("attaches = %d, want 2", auto.attaches)
	}
}

func TestFetchRetriesCallLayer(t *testing.T) {
	flaky := &fakeSession{err: errors.New("rpc server unavailable")}
	auto := &fakeAutomation{running: true, session: flaky}
	c := fastConnector(auto)
	c.attachAttempts = 3

	_, err := c.fetch(context.Background(), testWindow())
	if !errors.Is(err, ErrHostUnavailable) {
		t.Fatalf("error = %v, want ErrHostUnavailable", err)
	}
	if auto.attaches != 3 {
		t.Errorf("attaches = %d, want 3", auto.attaches)
	}
}

func TestFetchStopsOnCancel(t *testing.T) {
	auto := &fakeAutomation{running: false, startErr: nil}
	c := fastConnector(auto)
	c.hostWait = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.fetch(ctx, testWindow())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestIsServerExecutionFailed(t *testing.T) {
	if !isServerExecutionFailed(errors.New("CoCreateInstance: Server Execution Failed")) {
		t.Error("mixed-case match missed")
	}
	if isServerExecutionFailed(errors.New("access denied")) {
		t.Error("unrelated error matched")
	}
	if isServerExecutionFailed(nil) {
		t.Error("nil matched")
	}
}

func TestFrequencyFromType(t *testing.T) {
	if f, ok := frequencyFromType(olRecursWeekly); !ok || f.String() != "weekly" {
		t.Errorf("olRecursWeekly = %v, %v", f, ok)
	}
	if f, ok := frequencyFromType(olRecursMonthNth); !ok || f.String() != "monthly-nth" {
		t.Errorf("olRecursMonthNth = %v, %v", f, ok)
	}
	if _, ok := frequencyFromType(4); ok {
		t.Error("unknown recurrence type accepted")
	}
}

func TestWeekdaysFromMask(t *testing.T) {
	got := weekdaysFromMask(olMonday | olWednesday | olFriday)
	want := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("day %d = %v, want %v", i, got[i], want[i])
		}
	}
	if weekdaysFromMask(0) != nil {
		t.Error("empty mask yielded days")
	}
}

func TestCancelledStatus(t *testing.T) {
	if !cancelledStatus(olMeetingCanceled) || !cancelledStatus(olMeetingReceivedAndCanceled) {
		t.Error("cancelled statuses not recognised")
	}
	if cancelledStatus(0) {
		t.Error("olMeetingNonMeeting treated as cancelled")
	}
}
