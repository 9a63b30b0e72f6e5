// Package scanner runs one QR check-in attempt end to end: camera
// acquisition, the decode loop, payload parsing, submission and the dialogs
// shown for each result.
//
// A Session owns at most one attempt at a time. Start always tears down the
// previous attempt first, and Stop is safe from any goroutine and any number
// of times. Decode events and submission results are handled on a single
// event-loop goroutine per attempt.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fpang/qr-checkin/internal/camera"
	"github.com/fpang/qr-checkin/internal/decode"
	"github.com/fpang/qr-checkin/internal/notify"
	"github.com/fpang/qr-checkin/internal/qrpayload"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultDestination is where a student lands after checking in.
const DefaultDestination = "/dashboard/student"

// Dialog texts.
const (
	titleCamera     = "Cámara no disponible"
	titleInvalidQR  = "QR inválido"
	titleSuccess    = "Asistencia registrada"
	textSuccess     = "Tu asistencia fue marcada con QR."
	titleSubmitFail = "Error"
	textSubmitFail  = "No se pudo registrar la asistencia."
	titleTimeout    = "Tiempo agotado"
	textTimeout     = "No se detectó ningún QR. Volvé a intentarlo."
)

// ErrStopped is returned by Start when the attempt was stopped while the
// camera was being acquired.
var ErrStopped = errors.New("scan stopped")

// Submitter registers attendance for a decoded payload.
type Submitter interface {
	RegisterAttendanceViaQR(ctx context.Context, classID int64, token string) error
}

// Navigator moves the user to another screen after a successful check-in.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// Options configures a Session. Device and Submitter are required.
type Options struct {
	Device    camera.Device
	Submitter Submitter

	// NewDecoder builds the decoder for each attempt. Defaults to a
	// try-harder gozxing decoder.
	NewDecoder func() decode.Decoder

	Notifier  notify.Notifier
	Navigator Navigator
	Surface   camera.Surface

	// Destination is the route navigated to after a successful check-in.
	Destination string

	// Timeout stops the scan when no code has been decoded for this long.
	// Zero scans until stopped.
	Timeout time.Duration

	// OnOutcome observes every attempt outcome, terminal or not.
	OnOutcome func(Report)
}

// Session is the state of the scanning screen.
type Session struct {
	opts Options

	mu         sync.Mutex
	cur        *attempt
	state      State
	scanning   bool
	processing bool
	lastError  string
	errorShown bool
}

// attempt is one Start..terminal cycle.
type attempt struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
	results chan submission
	done    chan struct{}

	// Guarded by Session.mu.
	stream  camera.Stream
	sub     *decode.Subscription
	outcome Outcome
	classID int64
	acquire time.Duration
	submit  time.Duration
	report  Report
}

type submission struct {
	payload qrpayload.Payload
	err     error
	took    time.Duration
}

// New validates opts and fills in defaults.
func New(opts Options) (*Session, error) {
	if opts.Device == nil {
		return nil, errors.New("scanner: camera device is required")
	}
	if opts.Submitter == nil {
		return nil, errors.New("scanner: submitter is required")
	}
	if opts.NewDecoder == nil {
		opts.NewDecoder = func() decode.Decoder { return decode.NewQRDecoder(true) }
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewConsole(os.Stderr)
	}
	if opts.Navigator == nil {
		opts.Navigator = NavigatorFunc(func(string) {})
	}
	if opts.Surface == nil {
		opts.Surface = camera.NopSurface{}
	}
	if opts.Destination == "" {
		opts.Destination = DefaultDestination
	}
	return &Session{opts: opts, state: StateIdle}, nil
}

// Start stops any previous attempt, acquires the camera and starts decoding.
// It returns once frames are flowing; results are delivered through dialogs,
// navigation and OnOutcome. A camera failure is shown and also returned.
func (s *Session) Start(ctx context.Context) error {
	s.Stop()

	actx, cancel := context.WithCancel(ctx)
	a := &attempt{
		id:      uuid.NewString(),
		ctx:     actx,
		cancel:  cancel,
		started: time.Now(),
		results: make(chan submission, 1),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	s.cur = a
	s.state = StateAcquiringCamera
	s.scanning = true
	s.processing = false
	s.lastError = ""
	s.errorShown = false
	s.mu.Unlock()

	log.Info().Str("sessionId", a.id).Msg("Scan starting")

	stream, err := camera.Acquire(actx, s.opts.Device)
	if err != nil {
		if actx.Err() != nil {
			s.abort(a)
			return ErrStopped
		}
		s.deviceFailure(a, err)
		return err
	}

	s.mu.Lock()
	if s.cur != a || a.outcome != "" {
		s.mu.Unlock()
		camera.Release(stream)
		return ErrStopped
	}
	a.stream = stream
	a.acquire = time.Since(a.started)
	s.mu.Unlock()

	s.opts.Surface.Attach(stream)
	go func() {
		if err := s.opts.Surface.Play(actx); err != nil {
			log.Warn().Err(err).Str("sessionId", a.id).Msg("Preview playback blocked, scanning continues")
		}
	}()

	sub := decode.Start(actx, stream, s.opts.NewDecoder())

	s.mu.Lock()
	if s.cur != a || a.outcome != "" {
		s.mu.Unlock()
		sub.Cancel()
		s.opts.Surface.Detach()
		camera.Release(stream)
		return ErrStopped
	}
	a.sub = sub
	s.state = StateDecoding
	s.mu.Unlock()

	log.Info().
		Str("sessionId", a.id).
		Dur("acquire", a.acquire).
		Msg("Camera ready, decoding")

	go s.run(a, sub.Events())
	return nil
}

// Stop tears the current attempt down. It is a no-op beyond the first call.
func (s *Session) Stop() {
	s.mu.Lock()
	a := s.cur
	s.mu.Unlock()

	if a == nil {
		camera.ReleaseAll()
		return
	}
	s.abort(a)
}

// Wait blocks until the current attempt reaches a terminal outcome and
// returns its report. It returns immediately if nothing was started.
func (s *Session) Wait() Report {
	s.mu.Lock()
	a := s.cur
	s.mu.Unlock()
	if a == nil {
		return Report{}
	}
	<-a.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return a.report
}

// Snapshot returns the current flags.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:      s.state,
		Scanning:   s.scanning,
		Processing: s.processing,
		LastError:  s.lastError,
		ErrorShown: s.errorShown,
	}
	if s.cur != nil {
		snap.ID = s.cur.id
	}
	return snap
}

func (s *Session) run(a *attempt, events <-chan decode.Event) {
	var idle <-chan time.Time
	var timer *time.Timer
	if s.opts.Timeout > 0 {
		timer = time.NewTimer(s.opts.Timeout)
		defer timer.Stop()
		idle = timer.C
	}

	// The idle window restarts whenever control returns to decoding.
	rearm := func() {
		if timer != nil {
			timer.Reset(s.opts.Timeout)
		}
	}

	for {
		select {
		case <-a.ctx.Done():
			s.abort(a)
			return

		case ev := <-events:
			if ev.Err != nil {
				s.deviceFailure(a, ev.Err)
				return
			}
			s.handleDecoded(a, ev.Text)
			rearm()

		case res := <-a.results:
			if s.handleSubmission(a, res) {
				return
			}
			rearm()

		case <-idle:
			if s.isProcessing() {
				rearm()
				continue
			}
			s.handleTimeout(a)
			return
		}
	}
}

// handleDecoded sets processing before parsing so later frames of the same
// code are ignored until the submission resolves.
func (s *Session) handleDecoded(a *attempt, text string) {
	s.mu.Lock()
	if s.cur != a || !s.scanning || s.processing {
		s.mu.Unlock()
		log.Debug().Str("sessionId", a.id).Msg("Ignoring decode while processing")
		return
	}
	s.processing = true
	s.mu.Unlock()

	payload, err := qrpayload.Parse(text)
	if err != nil {
		msg := err.Error()
		var invalid *qrpayload.InvalidError
		if errors.As(err, &invalid) {
			msg = invalid.UserMessage()
		}

		s.mu.Lock()
		s.processing = false
		s.lastError = msg
		s.mu.Unlock()

		log.Warn().Str("sessionId", a.id).Str("preview", qrpayload.Preview(text)).Msg("Unrecognized QR payload")
		s.show(notify.Dialog{Kind: notify.KindWarning, Title: titleInvalidQR, Text: msg})
		s.observe(a, OutcomeInvalidQR, qrpayload.Preview(text))
		return
	}

	s.mu.Lock()
	s.state = StateSubmitting
	a.classID = payload.ClassID
	s.mu.Unlock()

	log.Info().
		Str("sessionId", a.id).
		Int64("classId", payload.ClassID).
		Str("format", string(payload.Format)).
		Msg("Submitting attendance")

	go s.submit(a, payload)
}

func (s *Session) submit(a *attempt, p qrpayload.Payload) {
	start := time.Now()
	err := s.opts.Submitter.RegisterAttendanceViaQR(a.ctx, p.ClassID, p.Token)
	res := submission{payload: p, err: err, took: time.Since(start)}
	select {
	case a.results <- res:
	case <-a.ctx.Done():
	}
}

// handleSubmission reports whether the attempt is over.
func (s *Session) handleSubmission(a *attempt, res submission) bool {
	s.mu.Lock()
	a.submit = res.took
	s.mu.Unlock()

	if res.err != nil {
		if a.ctx.Err() != nil {
			s.abort(a)
			return true
		}
		s.mu.Lock()
		s.processing = false
		s.state = StateDecoding
		s.lastError = res.err.Error()
		s.mu.Unlock()

		log.Error().Err(res.err).
			Str("sessionId", a.id).
			Int64("classId", res.payload.ClassID).
			Dur("took", res.took).
			Msg("Attendance submission failed")
		s.show(notify.Dialog{Kind: notify.KindError, Title: titleSubmitFail, Text: textSubmitFail})
		s.observe(a, OutcomeSubmitFailed, res.err.Error())
		return false
	}

	if !s.claim(a, OutcomeCheckedIn) {
		return true
	}
	s.teardown(a, StateStopped)

	log.Info().
		Str("sessionId", a.id).
		Int64("classId", res.payload.ClassID).
		Dur("took", res.took).
		Msg("Attendance registered")
	s.show(notify.Dialog{Kind: notify.KindSuccess, Title: titleSuccess, Text: textSuccess})
	s.opts.Navigator.Navigate(s.opts.Destination)
	s.finish(a, "")
	return true
}

func (s *Session) handleTimeout(a *attempt) {
	if !s.claim(a, OutcomeTimeout) {
		return
	}
	s.teardown(a, StateStopped)
	log.Info().Str("sessionId", a.id).Dur("timeout", s.opts.Timeout).Msg("Scan timed out")
	s.show(notify.Dialog{Kind: notify.KindInfo, Title: titleTimeout, Text: textTimeout})
	s.finish(a, fmt.Sprintf("no code within %s", s.opts.Timeout))
}

// deviceFailure shows the camera error at most once and ends the attempt.
func (s *Session) deviceFailure(a *attempt, err error) {
	if !s.claim(a, OutcomeCameraError) {
		return
	}
	msg := cameraMessage(err)

	s.mu.Lock()
	show := !s.errorShown
	s.errorShown = true
	s.lastError = msg
	s.mu.Unlock()

	s.teardown(a, StateError)
	log.Error().Err(err).Str("sessionId", a.id).Str("kind", camera.KindOf(err).String()).Msg("Camera failure")
	if show {
		s.show(notify.Dialog{Kind: notify.KindError, Title: titleCamera, Text: msg})
	}
	s.finish(a, err.Error())
}

// abort ends a by cancellation unless another outcome already claimed it.
// Teardown runs either way.
func (s *Session) abort(a *attempt) {
	claimed := s.claim(a, OutcomeCancelled)
	s.teardown(a, StateStopped)
	if claimed {
		log.Info().Str("sessionId", a.id).Msg("Scan cancelled")
		s.finish(a, "")
	}
}

// claim records the terminal outcome of a. Only the first claim wins.
func (s *Session) claim(a *attempt, o Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.outcome != "" {
		return false
	}
	a.outcome = o
	return true
}

// teardown stops the decoder, every track and the preview, and releases
// cached streams. Safe to repeat.
func (s *Session) teardown(a *attempt, state State) {
	s.mu.Lock()
	sub, stream := a.sub, a.stream
	a.sub, a.stream = nil, nil
	if s.cur == a {
		s.scanning = false
		s.processing = false
		if s.state != StateError {
			s.state = state
		}
	}
	s.mu.Unlock()

	a.cancel()
	if sub != nil {
		sub.Cancel()
	}
	if stream != nil {
		s.opts.Surface.Detach()
		camera.Release(stream)
	}
	camera.ReleaseAll()
}

// finish publishes the terminal report and releases Wait.
func (s *Session) finish(a *attempt, detail string) {
	s.mu.Lock()
	o := a.outcome
	s.mu.Unlock()

	rep := s.observe(a, o, detail)
	s.mu.Lock()
	a.report = rep
	s.mu.Unlock()
	close(a.done)
}

// observe builds a report for o and hands it to OnOutcome.
func (s *Session) observe(a *attempt, o Outcome, detail string) Report {
	s.mu.Lock()
	rep := Report{
		SessionID: a.id,
		Outcome:   o,
		ClassID:   a.classID,
		Detail:    detail,
		Acquire:   a.acquire,
		Submit:    a.submit,
		Elapsed:   time.Since(a.started),
		At:        time.Now().UTC(),
	}
	s.mu.Unlock()

	if s.opts.OnOutcome != nil {
		s.opts.OnOutcome(rep)
	}
	return rep
}

func (s *Session) show(d notify.Dialog) {
	if err := s.opts.Notifier.Notify(d); err != nil {
		log.Warn().Err(err).Str("title", d.Title).Msg("Failed to show dialog")
	}
}

func (s *Session) isProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

func cameraMessage(err error) string {
	var camErr *camera.Error
	if errors.As(err, &camErr) {
		return camErr.UserMessage()
	}
	return camera.NewError(camera.KindOther, "", err).UserMessage()
}
