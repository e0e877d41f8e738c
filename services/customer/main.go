// Клиентский терминал поддержки: регистрация, история, отправка текста,
// изображений и голосовых записей.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/supportchat/internal/api"
	"github.com/supportchat/internal/config"
	"github.com/supportchat/internal/identity"
	filestore "github.com/supportchat/internal/identity/file"
	memorystore "github.com/supportchat/internal/identity/memory"
	"github.com/supportchat/internal/logger"
	"github.com/supportchat/internal/recorder"
	"github.com/supportchat/internal/render"
	"github.com/supportchat/internal/session"
	"github.com/supportchat/internal/startup"
	"github.com/supportchat/internal/stream"
)

func main() {
	logger.SetPrefix("customer")
	ephemeral := flag.Bool("ephemeral", false, "do not persist identity (one-off session)")
	flag.Parse()

	cfg := config.Load()

	var store identity.Store
	switch {
	case *ephemeral || cfg.IdentityBackend == "memory":
		store = memorystore.New()
	case cfg.IdentityBackend == "redis":
		store = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "customer: ")
	default:
		store = filestore.New(cfg.IdentityPath)
	}

	client := api.NewClient(cfg.ServerURL, cfg.RequestTimeout)
	streams := stream.NewManager(cfg.ServerURL, cfg.StreamReconnectDelay)
	view := render.NewView(os.Stdout)
	sess := session.NewCustomer(store, client, streams, view, cfg.Realtime, cfg.MediaRefreshDelay)

	stdin := bufio.NewScanner(os.Stdin)
	prompt := func(q string) (string, error) {
		fmt.Printf("%s: ", q)
		if !stdin.Scan() {
			return "", stdin.Err()
		}
		return stdin.Text(), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sess.Start(ctx, prompt); err != nil {
		logger.Errorf("start: %v", err)
		os.Exit(1)
	}

	rec := recorder.New(
		recorder.NewExecDevice(cfg.Recorder.Command, cfg.Recorder.MIME),
		cfg.MaxRecordDuration,
		func(clip recorder.Clip) {
			upCtx, upCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer upCancel()
			if err := sess.SendVoice(upCtx, clip); err != nil {
				logger.Errorf("voice upload: %v", err)
			}
		},
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
		os.Stdin.Close()
	}()

	fmt.Println("Команды: /image <путь>, /record, /history, /quit. Остальное отправляется как текст.")
	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			cancel()
		case line == "/history":
			if err := sess.LoadHistory(ctx); err != nil {
				view.Notice("Не удалось загрузить историю")
			}
		case strings.HasPrefix(line, "/image "):
			sendImage(ctx, sess, view, strings.TrimSpace(strings.TrimPrefix(line, "/image ")))
		case line == "/record":
			toggleRecording(ctx, rec, view)
		default:
			// оптимистичный показ + отправка; при неудаче остаётся с пометкой failed
			_ = sess.SendText(ctx, line)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if rec.State() == recorder.StateRecording {
		_, _ = rec.Stop()
	}
	sess.Close()
	logger.Info("bye")
}

func sendImage(ctx context.Context, sess *session.Customer, view *render.View, path string) {
	f, err := os.Open(path)
	if err != nil {
		view.Notice("Файл не найден: " + path)
		return
	}
	defer f.Close()
	_ = sess.SendImage(ctx, f.Name(), f)
}

func toggleRecording(ctx context.Context, rec *recorder.Recorder, view *render.View) {
	if rec.State() == recorder.StateRecording {
		if _, err := rec.Stop(); err != nil {
			view.Notice("Запись уже остановлена")
		}
		return
	}
	if err := rec.Start(ctx); err != nil {
		if errors.Is(err, recorder.ErrPermissionDenied) {
			view.Notice("Нет доступа к микрофону")
			return
		}
		view.Notice("Не удалось начать запись")
		return
	}
	view.Notice("Идёт запись — /record для остановки (автостоп через минуту)")
}
