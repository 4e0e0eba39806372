// Package voice captures recorded answers and turns them into transcripts.
//
// A recording is started, fed audio chunks, then stopped. Stopping starts
// transcription in the background; clients poll the recording until it is
// done or failed. Cancelling discards the audio at any point.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/interviewer/internal/metrics"
)

var (
	ErrNotFound          = errors.New("recording not found")
	ErrNotRecording      = errors.New("no active recording")
	ErrTooLarge          = errors.New("recording too large")
	ErrTooManyRecordings = errors.New("too many active recordings")
	ErrNoSpeech          = errors.New("no speech detected")
)

// State is the lifecycle stage of a recording.
type State string

const (
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Status is a snapshot of a recording.
type Status struct {
	ID         string `json:"id"`
	State      State  `json:"state"`
	Bytes      int    `json:"bytes"`
	Transcript string `json:"transcript,omitempty"`
	Words      int    `json:"words"`
	Err        error  `json:"-"`
}

// Config bounds recordings.
type Config struct {
	MaxBytes  int64         // per recording
	MaxActive int           // recordings held at once
	Timeout   time.Duration // per transcription
	TTL       time.Duration // idle recordings are dropped after this
	Filename  string        // name sent to the transcriber, selects the codec
}

type recording struct {
	id         string
	state      State
	audio      []byte
	transcript string
	err        error
	updated    time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// Manager holds in-progress recordings in memory.
type Manager struct {
	tr  Transcriber
	cfg Config

	mu   sync.Mutex
	recs map[string]*recording

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
	now  func() time.Time
}

// NewManager creates a Manager. Zero config values get defaults.
func NewManager(tr Transcriber, cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Filename == "" {
		cfg.Filename = "recording.webm"
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		tr:   tr,
		cfg:  cfg,
		recs: make(map[string]*recording),
		ctx:  ctx,
		stop: stop,
		now:  time.Now,
	}
}

// Start begins a new recording and returns its id. ErrTooManyRecordings is
// returned while MaxActive recordings are held.
func (m *Manager) Start() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.recs) >= m.cfg.MaxActive {
		return "", ErrTooManyRecordings
	}
	id := uuid.NewString()
	m.recs[id] = &recording{
		id:      id,
		state:   StateRecording,
		updated: m.now(),
		done:    make(chan struct{}),
	}
	metrics.ActiveRecordings.Inc()
	return id, nil
}

// Append adds an audio chunk and returns the total recorded size.
func (m *Manager) Append(id string, chunk []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.recs[id]
	if !ok {
		return 0, ErrNotFound
	}
	if r.state != StateRecording {
		return 0, ErrNotRecording
	}
	if int64(len(r.audio)+len(chunk)) > m.cfg.MaxBytes {
		return len(r.audio), ErrTooLarge
	}
	r.audio = append(r.audio, chunk...)
	r.updated = m.now()
	return len(r.audio), nil
}

// Stop finalizes the audio and starts transcription in the background.
// A recording without audio fails immediately with ErrNoSpeech.
func (m *Manager) Stop(id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.recs[id]
	if !ok {
		return Status{}, ErrNotFound
	}
	if r.state != StateRecording {
		return Status{}, ErrNotRecording
	}
	r.updated = m.now()

	if len(r.audio) == 0 {
		r.state = StateFailed
		r.err = ErrNoSpeech
		close(r.done)
		return r.status(), nil
	}

	r.state = StateTranscribing
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.Timeout)
	r.cancel = cancel
	audio := r.audio

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		text, err := TranscribeOnce(ctx, m.tr, audio, m.cfg.Filename)
		m.finish(id, text, err)
	}()
	return r.status(), nil
}

func (m *Manager) finish(id, text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.recs[id]
	if !ok {
		// Cancelled while transcribing.
		return
	}
	r.audio = nil
	r.cancel = nil
	r.updated = m.now()
	if err != nil {
		slog.Warn("transcription failed", "recording", id, "error", err)
		r.state = StateFailed
		r.err = err
	} else {
		r.state = StateDone
		r.transcript = text
	}
	close(r.done)
}

// Get returns a snapshot of the recording.
func (m *Manager) Get(id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return Status{}, ErrNotFound
	}
	return r.status(), nil
}

// Await blocks until the recording is done or failed, or ctx ends.
func (m *Manager) Await(ctx context.Context, id string) (Status, error) {
	m.mu.Lock()
	r, ok := m.recs[id]
	m.mu.Unlock()
	if !ok {
		return Status{}, ErrNotFound
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	return m.Get(id)
}

// Cancel discards the recording and any transcription in flight.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	r, ok := m.recs[id]
	if ok {
		m.remove(r)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return nil
}

// remove must be called with m.mu held.
func (m *Manager) remove(r *recording) {
	if r.cancel != nil {
		r.cancel()
	}
	if r.state == StateRecording || r.state == StateTranscribing {
		close(r.done)
	}
	r.audio = nil
	delete(m.recs, r.id)
	metrics.ActiveRecordings.Dec()
}

// Len returns the number of recordings held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

// Run drops idle recordings until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.expire(); n > 0 {
				slog.Debug("expired idle recordings", "count", n)
			}
		}
	}
}

func (m *Manager) expire() int {
	cutoff := m.now().Add(-m.cfg.TTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.recs {
		if r.updated.Before(cutoff) {
			m.remove(r)
			n++
		}
	}
	return n
}

// Close cancels pending transcriptions and waits for them to return.
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}

func (r *recording) status() Status {
	s := Status{ID: r.id, State: r.state, Bytes: len(r.audio), Err: r.err}
	if r.state == StateDone {
		s.Transcript = r.transcript
		s.Words = len(strings.Fields(r.transcript))
	}
	return s
}

// TranscribeOnce transcribes a complete recording. Empty audio and empty
// transcripts are reported as ErrNoSpeech.
func TranscribeOnce(ctx context.Context, tr Transcriber, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", ErrNoSpeech
	}
	text, err := tr.Transcribe(ctx, audio, filename)
	if err != nil {
		return "", fmt.Errorf("transcribe recording: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}
