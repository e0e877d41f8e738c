// Package backendstub — заглушка внешнего бэкенда поддержки:
// пользователи, сообщения, загрузки и SSE в памяти. Нужна для локальной
// разработки и тестов клиентов; это не боевой сервер.
package backendstub

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/supportchat/internal/identity"
	"github.com/supportchat/internal/logger"
	"github.com/supportchat/internal/model"
)

var imageExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}
var voiceExt = map[string]bool{".webm": true, ".ogg": true, ".mp3": true, ".wav": true}

// Options настраивают заглушку: короткий пинг и мгновенные интервалы — для тестов.
type Options struct {
	PingInterval       time.Duration
	CORSAllowedOrigins string
}

type Server struct {
	pingInterval time.Duration
	corsOrigins  string

	mu         sync.Mutex
	users      map[string]*model.User
	order      []string
	messages   map[string][]model.Message
	uploads    map[string][]byte
	nextMsgID  int64
	otps       map[string]string
	authorized map[string]bool
	subs       map[string]map[chan model.Message]struct{}
	active     int
}

func New(opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.CORSAllowedOrigins == "" {
		opts.CORSAllowedOrigins = "*"
	}
	return &Server{
		pingInterval: opts.PingInterval,
		corsOrigins:  opts.CORSAllowedOrigins,
		users:        make(map[string]*model.User),
		messages:     make(map[string][]model.Message),
		uploads:      make(map[string][]byte),
		otps:         make(map[string]string),
		authorized:   make(map[string]bool),
		subs:         make(map[string]map[chan model.Message]struct{}),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("backendstub writeJSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// Router собирает HTTP-поверхность заглушки.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.corsOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Admin-Token", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/users", s.registerUser)
	r.Get("/api/messages/{userID}", s.getMessages)
	r.Post("/api/messages", s.sendMessage)
	r.Post("/api/files/upload/{kind}", s.uploadFile)
	r.Get("/api/stream/{userID}", s.streamMessages)
	r.Get("/static/uploads/*", s.serveUpload)

	r.Post("/api/admin/request-otp", s.requestOTP)
	r.Post("/api/admin/verify-otp", s.verifyOTP)
	r.Post("/api/admin/logout", s.logout)
	r.Group(func(r chi.Router) {
		r.Use(s.adminOnly)
		r.Get("/api/admin/users", s.listUsers)
		r.Get("/api/admin/stats", s.stats)
		r.Delete("/api/admin/users/{userID}", s.deleteUser)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		s.mu.Lock()
		ok := token != "" && s.authorized[token]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "Нет доступа")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if !identity.Valid(body.UserID) {
		writeError(w, http.StatusBadRequest, "Некорректный user ID")
		return
	}
	if body.Name == "" {
		body.Name = identity.DefaultName
	}
	s.mu.Lock()
	if _, ok := s.users[body.UserID]; !ok {
		s.users[body.UserID] = &model.User{ID: body.UserID, Name: body.Name, LastSeen: time.Now()}
		s.order = append(s.order, body.UserID)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user_id": body.UserID})
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	s.mu.Lock()
	msgs := make([]model.Message, len(s.messages[userID]))
	copy(msgs, s.messages[userID])
	s.mu.Unlock()
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
}

// appendMessage сохраняет сообщение и рассылает его подписчикам потока.
func (s *Server) appendMessage(userID string, sender model.SenderType, msgType model.MessageType, content string) model.Message {
	s.mu.Lock()
	s.nextMsgID++
	msg := model.Message{
		ID:          s.nextMsgID,
		UserID:      userID,
		SenderType:  sender,
		MessageType: msgType,
		Content:     content,
		CreatedAt:   time.Now(),
	}
	s.messages[userID] = append(s.messages[userID], msg)
	if u, ok := s.users[userID]; ok {
		u.LastSeen = msg.CreatedAt
	}
	var listeners []chan model.Message
	for ch := range s.subs[userID] {
		listeners = append(listeners, ch)
	}
	s.mu.Unlock()
	for _, ch := range listeners {
		select {
		case ch <- msg:
		default:
			// подписчик не успевает — событие пропускается, история остаётся источником истины
		}
	}
	return msg
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID      string `json:"user_id"`
		SenderType  string `json:"sender_type"`
		MessageType string `json:"message_type"`
		Content     string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if !identity.Valid(body.UserID) {
		writeError(w, http.StatusBadRequest, "Некорректный user ID")
		return
	}
	if body.SenderType == "" {
		body.SenderType = string(model.SenderCustomer)
	}
	if body.MessageType == "" {
		body.MessageType = string(model.MessageTypeText)
	}
	if body.MessageType == string(model.MessageTypeText) && strings.TrimSpace(body.Content) == "" {
		writeError(w, http.StatusBadRequest, "Пустое сообщение")
		return
	}
	msg := s.appendMessage(body.UserID, model.SenderType(body.SenderType), model.MessageType(body.MessageType), body.Content)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message_id": msg.ID})
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if kind != "image" && kind != "voice" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err := r.ParseMultipartForm(25 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	userID := r.FormValue("user_id")
	senderType := r.FormValue("sender_type")
	if senderType == "" {
		senderType = string(model.SenderCustomer)
	}
	if !identity.Valid(userID) {
		writeError(w, http.StatusBadRequest, "Некорректный user ID")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Файл не найден")
		return
	}
	defer file.Close()
	ext := strings.ToLower(filepath.Ext(header.Filename))
	allowed := imageExt
	if kind == "voice" {
		allowed = voiceExt
	}
	if !allowed[ext] {
		writeError(w, http.StatusBadRequest, "Недопустимый формат файла")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Не удалось сохранить файл")
		return
	}
	path := "static/uploads/" + kind + "/" + uuid.New().String() + ext
	s.mu.Lock()
	s.uploads[path] = data
	s.mu.Unlock()

	msgType := model.MessageTypeImage
	if kind == "voice" {
		msgType = model.MessageTypeVoice
	}
	msg := s.appendMessage(userID, model.SenderType(senderType), msgType, path)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message_id": msg.ID})
}

func (s *Server) serveUpload(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	s.mu.Lock()
	data, ok := s.uploads[path]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Файл не найден")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// streamMessages — SSE: JSON-сообщения и ping каждые pingInterval.
func (s *Server) streamMessages(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ch := make(chan model.Message, 64)
	s.mu.Lock()
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[chan model.Message]struct{})
	}
	s.subs[userID][ch] = struct{}{}
	s.active++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs[userID], ch)
		s.active--
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-ch:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Errorf("backendstub stream marshal: %v", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-ping.C:
			fmt.Fprint(w, "data: {\"type\": \"ping\"}\n\n")
			flusher.Flush()
		}
	}
}

func generateOTP(length int) string {
	const digits = "0123456789"
	b := make([]byte, length)
	for i := range b {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		b[i] = digits[n.Int64()]
	}
	return string(b)
}

func (s *Server) requestOTP(w http.ResponseWriter, r *http.Request) {
	tokenBytes := make([]byte, 16)
	if _, err := rand.Read(tokenBytes); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	token := hex.EncodeToString(tokenBytes)
	code := generateOTP(6)
	s.mu.Lock()
	s.otps[token] = code
	s.mu.Unlock()
	// dev-эхо кода: в настоящем бэкенде код уходит во внешний канал
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token, "otp": code})
}

func (s *Server) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OTP   string `json:"otp"`
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	s.mu.Lock()
	code, ok := s.otps[body.Token]
	if ok && code == body.OTP {
		delete(s.otps, body.Token)
		s.authorized[body.Token] = true
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": body.Token})
		return
	}
	s.mu.Unlock()
	writeError(w, http.StatusBadRequest, "Неверный код")
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Admin-Token")
	s.mu.Lock()
	delete(s.authorized, token)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := make([]model.User, 0, len(s.order))
	for _, id := range s.order {
		u, ok := s.users[id]
		if !ok {
			continue
		}
		cp := *u
		msgs := s.messages[id]
		cp.UnreadCount = len(msgs)
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			cp.LastMessage = &last
		}
		users = append(users, cp)
	}
	s.mu.Unlock()
	sort.SliceStable(users, func(i, j int) bool { return users[i].LastSeen.After(users[j].LastSeen) })
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	total := 0
	for _, msgs := range s.messages {
		total += len(msgs)
	}
	st := model.Stats{TotalMessages: total, TotalUsers: len(s.users), ActiveConnections: s.active}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": st})
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	s.mu.Lock()
	for _, msg := range s.messages[userID] {
		if msg.MessageType != model.MessageTypeText {
			delete(s.uploads, msg.Content)
		}
	}
	delete(s.users, userID)
	delete(s.messages, userID)
	for i, id := range s.order {
		if id == userID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
