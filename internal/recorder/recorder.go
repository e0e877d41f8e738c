// Package recorder — запись голосового сообщения: Idle → RequestingPermission →
// Recording → Stopping → Idle. Устройство освобождается при ЛЮБОМ выходе из
// Recording, включая автостоп по максимальной длительности.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type State string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateRecording            State = "recording"
	StateStopping             State = "stopping"
)

var (
	// ErrPermissionDenied — устройство записи недоступно или доступ запрещён.
	ErrPermissionDenied = errors.New("microphone access denied")
	// ErrBusy — запись уже идёт.
	ErrBusy = errors.New("already recording")
	// ErrNotRecording — остановка без активной записи.
	ErrNotRecording = errors.New("not recording")
)

// Capture — открытый захват звука. Close освобождает устройство,
// после чего канал Chunks закрывается.
type Capture interface {
	Chunks() <-chan []byte
	Close() error
}

// Device открывает устройство записи звука.
type Device interface {
	Open(ctx context.Context) (Capture, error)
	MIME() string
}

// Clip — готовая запись: фрагменты склеены в один буфер.
type Clip struct {
	Data     []byte
	MIME     string
	Duration time.Duration
}

// Recorder копит фрагменты звука и по остановке отдаёт склеенный Clip в onClip
// (обычно — загрузка через транспорт). onClip может быть nil.
type Recorder struct {
	device      Device
	maxDuration time.Duration
	onClip      func(Clip)

	mu        sync.Mutex
	state     State
	capture   Capture
	chunks    [][]byte
	started   time.Time
	stopTimer *time.Timer
	collected chan struct{}
}

func New(device Device, maxDuration time.Duration, onClip func(Clip)) *Recorder {
	if maxDuration <= 0 {
		maxDuration = 60 * time.Second
	}
	return &Recorder{
		device:      device,
		maxDuration: maxDuration,
		onClip:      onClip,
		state:       StateIdle,
	}
}

// State возвращает текущее состояние.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start запрашивает устройство и начинает запись. Отказ в доступе возвращает
// ErrPermissionDenied и оставляет рекордер в Idle.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrBusy
	}
	r.state = StateRequestingPermission
	r.mu.Unlock()

	capture, err := r.device.Open(ctx)
	if err != nil {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	r.mu.Lock()
	r.state = StateRecording
	r.capture = capture
	r.chunks = nil
	r.started = time.Now()
	r.collected = make(chan struct{})
	// Автостоп ограничивает запись и гарантирует освобождение устройства.
	// Если запись уже остановили вручную, Stop вернёт ErrNotRecording.
	r.stopTimer = time.AfterFunc(r.maxDuration, func() {
		_, _ = r.Stop()
	})
	r.mu.Unlock()

	go r.collect(capture)
	return nil
}

func (r *Recorder) collect(capture Capture) {
	for chunk := range capture.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		cp := make([]byte, len(chunk))
		copy(cp, chunk)
		r.mu.Lock()
		r.chunks = append(r.chunks, cp)
		r.mu.Unlock()
	}
	r.mu.Lock()
	done := r.collected
	r.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// Stop завершает запись: освобождает устройство, дожидается остатка фрагментов
// и склеивает их в Clip. Clip передаётся в onClip и возвращается вызывающему.
func (r *Recorder) Stop() (*Clip, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.state = StateStopping
	capture := r.capture
	timer := r.stopTimer
	started := r.started
	done := r.collected
	r.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	// Ошибка Close не мешает склейке: устройство в любом случае освобождено.
	_ = capture.Close()
	<-done

	r.mu.Lock()
	var total int
	for _, c := range r.chunks {
		total += len(c)
	}
	data := make([]byte, 0, total)
	for _, c := range r.chunks {
		data = append(data, c...)
	}
	r.chunks = nil
	r.capture = nil
	r.collected = nil
	r.stopTimer = nil
	r.state = StateIdle
	r.mu.Unlock()

	clip := &Clip{Data: data, MIME: r.device.MIME(), Duration: time.Since(started)}
	if r.onClip != nil {
		r.onClip(*clip)
	}
	return clip, nil
}
