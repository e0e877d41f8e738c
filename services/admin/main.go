// Админ-консоль поддержки: OTP-вход, список пользователей с выбором и
// массовым удалением, просмотр чата с живой подпиской.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/supportchat/internal/api"
	"github.com/supportchat/internal/config"
	"github.com/supportchat/internal/logger"
	"github.com/supportchat/internal/model"
	"github.com/supportchat/internal/recorder"
	"github.com/supportchat/internal/render"
	"github.com/supportchat/internal/roster"
	"github.com/supportchat/internal/session"
	"github.com/supportchat/internal/stream"
)

type console struct {
	mu      sync.Mutex
	visible []model.User
}

func (c *console) setVisible(users []model.User) {
	c.mu.Lock()
	c.visible = users
	c.mu.Unlock()
}

// resolve принимает номер строки из последнего показанного списка или сырой id.
func (c *console) resolve(arg string) (model.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(c.visible) {
		return c.visible[n-1], true
	}
	for _, u := range c.visible {
		if u.ID == arg {
			return u, true
		}
	}
	return model.User{}, false
}

func main() {
	logger.SetPrefix("admin")
	cfg := config.Load()

	client := api.NewClient(cfg.ServerURL, cfg.RequestTimeout)
	streams := stream.NewManager(cfg.ServerURL, cfg.StreamReconnectDelay)
	adm := session.NewAdmin(client, streams)
	chatView := render.NewView(os.Stdout)

	stdin := bufio.NewScanner(os.Stdin)
	prompt := func(q string) (string, error) {
		fmt.Printf("%s: ", q)
		if !stdin.Scan() {
			if err := stdin.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return strings.TrimSpace(stdin.Text()), nil
	}

	// Вход: код приходит во внешний канал; dev-эхо печатаем только в dev-среде
	for {
		err := adm.Login(context.Background(), prompt, func(otp string) {
			if os.Getenv("APP_ENV") != "production" {
				fmt.Printf("(dev) Код: %s\n", otp)
			}
		})
		if err == nil {
			break
		}
		if errors.Is(err, io.EOF) {
			logger.Error("login: stdin closed")
			os.Exit(1)
		}
		logger.Errorf("login: %v", err)
		fmt.Println("Вход не удался, попробуйте ещё раз.")
	}

	c := &console{}
	var ctl *roster.Controller
	ctl = roster.NewController(client, cfg.RosterRefresh, cfg.StatsRefresh,
		func(users []model.User) {
			c.setVisible(users)
			printRoster(users, ctl)
		},
		func(st model.Stats) {
			fmt.Printf("— сообщений: %d, пользователей: %d, подключений: %d —\n",
				st.TotalMessages, st.TotalUsers, st.ActiveConnections)
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctl.Run(ctx)

	rec := recorder.New(
		recorder.NewExecDevice(cfg.Recorder.Command, cfg.Recorder.MIME),
		cfg.MaxRecordDuration,
		func(clip recorder.Clip) {
			upCtx, upCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer upCancel()
			if err := adm.SendVoice(upCtx, clip); err != nil {
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

	fmt.Println("Команды: /list /select <n> /all /delete /search <строка> /open <n> /back /image <путь> /record /logout /quit")
	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		handleCommand(ctx, line, c, ctl, adm, chatView, rec, prompt, cancel)
		if ctx.Err() != nil {
			break
		}
	}

	if rec.State() == recorder.StateRecording {
		_, _ = rec.Stop()
	}
	adm.CloseChat()
	logoutCtx, logoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	adm.Logout(logoutCtx)
	logoutCancel()
	logger.Info("bye")
}

func handleCommand(ctx context.Context, line string, c *console, ctl *roster.Controller, adm *session.Admin, chatView *render.View, rec *recorder.Recorder, prompt session.Prompter, cancel context.CancelFunc) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "":
	case "/quit":
		cancel()
	case "/logout":
		cancel()
	case "/list":
		if err := ctl.Refresh(ctx); err != nil {
			fmt.Println("— Не удалось обновить список —")
		}
		if err := ctl.RefreshStats(ctx); err != nil {
			fmt.Println("— Не удалось обновить статистику —")
		}
	case "/search":
		ctl.Filter(arg)
	case "/select":
		if u, ok := c.resolve(arg); ok {
			ctl.ToggleSelection(u.ID)
		} else {
			fmt.Println("— Пользователь не найден —")
		}
	case "/all":
		ctl.SelectAll()
	case "/delete":
		err := ctl.DeleteSelected(ctx, func(n int) bool {
			ans, perr := prompt(fmt.Sprintf("Будет удалено пользователей: %d. Вы уверены? [y/N]", n))
			return perr == nil && strings.EqualFold(ans, "y")
		})
		switch {
		case errors.Is(err, roster.ErrNoSelection):
			fmt.Println("— Никто не выбран —")
		case errors.Is(err, roster.ErrNotConfirmed):
			fmt.Println("— Удаление отменено —")
		case err != nil:
			fmt.Printf("— Удаление завершилось с ошибками: %v —\n", err)
		default:
			fmt.Println("— Пользователи удалены —")
		}
	case "/open":
		u, ok := c.resolve(arg)
		if !ok {
			fmt.Println("— Пользователь не найден —")
			return
		}
		fmt.Printf("=== Чат с %s ===\n", u.Name)
		if err := adm.OpenChat(ctx, u, chatView); err != nil {
			fmt.Println("— Не удалось открыть чат —")
		}
	case "/back":
		adm.CloseChat()
		fmt.Println("=== Список пользователей ===")
	case "/image":
		f, err := os.Open(arg)
		if err != nil {
			fmt.Println("— Файл не найден —")
			return
		}
		defer f.Close()
		if err := adm.SendImage(ctx, f.Name(), f); err != nil {
			fmt.Println("— Не удалось отправить изображение —")
		}
	case "/record":
		if rec.State() == recorder.StateRecording {
			_, _ = rec.Stop()
			return
		}
		if err := rec.Start(ctx); err != nil {
			if errors.Is(err, recorder.ErrPermissionDenied) {
				fmt.Println("— Нет доступа к микрофону —")
			} else {
				fmt.Println("— Не удалось начать запись —")
			}
			return
		}
		fmt.Println("— Идёт запись, /record для остановки —")
	default:
		if adm.ActiveChat() == "" {
			fmt.Println("— Сначала откройте чат: /open <n> —")
			return
		}
		if err := adm.SendText(ctx, line); err != nil {
			fmt.Println("— Сообщение не отправлено —")
		}
	}
}

func printRoster(users []model.User, ctl *roster.Controller) {
	if len(users) == 0 {
		fmt.Println(render.EmptyRosterNotice)
		return
	}
	now := time.Now()
	for i, u := range users {
		fmt.Printf("%2d. %s\n", i+1, render.RosterLine(u, ctl.IsSelected(u.ID), now))
	}
}
