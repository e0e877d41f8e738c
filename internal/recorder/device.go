package recorder

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/supportchat/internal/logger"
)

const chunkSize = 4096

// ExecDevice запускает внешнюю команду записи (arecord, ffmpeg и т.п.),
// читающую микрофон и пишущую аудиопоток в stdout.
type ExecDevice struct {
	Command []string
	Mime    string
}

func NewExecDevice(command []string, mime string) *ExecDevice {
	return &ExecDevice{Command: command, Mime: mime}
}

func (d *ExecDevice) MIME() string {
	if d.Mime == "" {
		return "audio/wav"
	}
	return d.Mime
}

// Open запускает команду. Ошибка запуска трактуется как отказ в доступе к микрофону.
func (d *ExecDevice) Open(ctx context.Context) (Capture, error) {
	if len(d.Command) == 0 {
		return nil, fmt.Errorf("recorder command is not configured")
	}
	cctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(cctx, d.Command[0], d.Command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", d.Command[0], err)
	}

	capture := &execCapture{
		cancel:   cancel,
		cmd:      cmd,
		ch:       make(chan []byte, 16),
		readDone: make(chan struct{}),
	}
	go capture.read(stdout)
	return capture, nil
}

type execCapture struct {
	cancel   context.CancelFunc
	cmd      *exec.Cmd
	ch       chan []byte
	readDone chan struct{}
}

func (c *execCapture) Chunks() <-chan []byte { return c.ch }

func (c *execCapture) read(r io.Reader) {
	defer close(c.ch)
	defer close(c.readDone)
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.ch <- chunk
		}
		if err != nil {
			if err != io.EOF {
				logger.Errorf("recorder read: %v", err)
			}
			return
		}
	}
}

// Close завершает процесс записи и ждёт его; канал фрагментов закрывается
// после дочитывания stdout.
func (c *execCapture) Close() error {
	c.cancel()
	// Wait нельзя звать, пока pipe не дочитан
	<-c.readDone
	err := c.cmd.Wait()
	if err != nil && c.cmd.ProcessState != nil && !c.cmd.ProcessState.Success() {
		// завершение по сигналу kill — штатная остановка
		return nil
	}
	return err
}
