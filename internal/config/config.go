package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/supportchat/internal/logger"
	"gopkg.in/yaml.v3"
)

// loadEnv читает .env только вне production (в контейнере/prod конфиг только из env).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		if idx := strings.LastIndex(parent, "/"); idx <= 0 {
			return
		} else {
			dir = parent[:idx]
			if dir == "" {
				dir = "/"
			}
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// RedisConfig — Redis для общего хранилища идентификатора (киоски, несколько терминалов).
type RedisConfig struct {
	URL string `yaml:"url"`
}

// RecorderConfig — внешняя команда записи звука. Команда должна писать
// аудиопоток в stdout и завершаться по SIGTERM/закрытию stdin.
type RecorderConfig struct {
	Command []string `yaml:"command"`
	MIME    string   `yaml:"mime"`
}

// Config содержит настройки клиентов поддержки.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	// Бэкенд
	ServerURL      string        `yaml:"server_url"`
	RequestTimeout time.Duration `yaml:"-"`

	// Identity Store
	IdentityBackend string `yaml:"identity_backend"` // file | redis | memory
	IdentityPath    string `yaml:"identity_path"`
	Redis           RedisConfig `yaml:"redis"`

	// Поток сообщений
	Realtime             bool          `yaml:"realtime"` // live-доставка для клиента; по умолчанию выключена
	StreamReconnectDelay time.Duration `yaml:"-"`
	MediaRefreshDelay    time.Duration `yaml:"-"`

	// Админ-консоль
	RosterRefresh time.Duration `yaml:"-"`
	StatsRefresh  time.Duration `yaml:"-"`

	// Запись голоса
	MaxRecordDuration time.Duration  `yaml:"-"`
	Recorder          RecorderConfig `yaml:"recorder"`

	// Логирование
	LogLevel string `yaml:"log_level"`

	// Dev-бэкенд (заглушка внешнего сервера)
	StubAddr           string `yaml:"stub_addr"`
	UploadDir          string `yaml:"upload_dir"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
}

// yamlConfig — промежуточная структура для парсинга YAML (интервалы в секундах/мс).
type yamlConfig struct {
	ServerURL            string         `yaml:"server_url"`
	RequestTimeout       int            `yaml:"request_timeout"`
	IdentityBackend      string         `yaml:"identity_backend"`
	IdentityPath         string         `yaml:"identity_path"`
	Redis                RedisConfig    `yaml:"redis"`
	Realtime             bool           `yaml:"realtime"`
	StreamReconnectDelay int            `yaml:"stream_reconnect_delay"`
	MediaRefreshDelayMS  int            `yaml:"media_refresh_delay_ms"`
	RosterRefresh        int            `yaml:"roster_refresh"`
	StatsRefresh         int            `yaml:"stats_refresh"`
	MaxRecordSeconds     int            `yaml:"max_record_seconds"`
	Recorder             RecorderConfig `yaml:"recorder"`
	LogLevel             string         `yaml:"log_level"`
	StubAddr             string         `yaml:"stub_addr"`
	UploadDir            string         `yaml:"upload_dir"`
	CORSAllowedOrigins   string         `yaml:"cors_allowed_origins"`
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	// Значения по умолчанию (интервалы — как в исходном виджете)
	yc := yamlConfig{
		ServerURL:            "http://localhost:5000",
		RequestTimeout:       15,
		IdentityBackend:      "file",
		IdentityPath:         defaultIdentityPath(),
		StreamReconnectDelay: 5,
		MediaRefreshDelayMS:  500,
		RosterRefresh:        60,
		StatsRefresh:         30,
		MaxRecordSeconds:     60,
		Recorder: RecorderConfig{
			Command: []string{"arecord", "-f", "cd", "-t", "wav", "-q", "-"},
			MIME:    "audio/wav",
		},
		LogLevel:           "info",
		StubAddr:           ":5000",
		UploadDir:          "./static/uploads",
		CORSAllowedOrigins: "*",
	}

	// Загрузка конфигурации: CONFIG_PATH → config/client.yaml
	paths := []string{os.Getenv("CONFIG_PATH"), "config/client.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
		} else {
			logger.Infof("config: загружен %s", path)
		}
		break
	}

	cfg := &Config{
		ServerURL:            strings.TrimSuffix(envStr("SERVER_URL", yc.ServerURL), "/"),
		RequestTimeout:       time.Duration(envInt("REQUEST_TIMEOUT", yc.RequestTimeout)) * time.Second,
		IdentityBackend:      envStr("IDENTITY_BACKEND", yc.IdentityBackend),
		IdentityPath:         envStr("IDENTITY_PATH", yc.IdentityPath),
		Redis:                RedisConfig{URL: envStr("REDIS_URL", yc.Redis.URL)},
		Realtime:             envBool("REALTIME", yc.Realtime),
		StreamReconnectDelay: time.Duration(envInt("STREAM_RECONNECT_DELAY", yc.StreamReconnectDelay)) * time.Second,
		MediaRefreshDelay:    time.Duration(envInt("MEDIA_REFRESH_DELAY_MS", yc.MediaRefreshDelayMS)) * time.Millisecond,
		RosterRefresh:        time.Duration(envInt("ROSTER_REFRESH", yc.RosterRefresh)) * time.Second,
		StatsRefresh:         time.Duration(envInt("STATS_REFRESH", yc.StatsRefresh)) * time.Second,
		MaxRecordDuration:    time.Duration(envInt("MAX_RECORD_SECONDS", yc.MaxRecordSeconds)) * time.Second,
		Recorder:             yc.Recorder,
		LogLevel:             envStr("LOG_LEVEL", yc.LogLevel),
		StubAddr:             envStr("STUB_ADDR", yc.StubAddr),
		UploadDir:            envStr("UPLOAD_DIR", yc.UploadDir),
		CORSAllowedOrigins:   envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379"
	}
	if cfg.IdentityBackend == "redis" && os.Getenv("REDIS_URL") == "" && yc.Redis.URL == "" {
		logger.Info("config: identity_backend=redis без redis.url — используется redis://localhost:6379")
	}
	return cfg
}

// defaultIdentityPath — аналог localStorage: файл в каталоге конфигурации пользователя.
func defaultIdentityPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".supportchat/identity.json"
	}
	return dir + "/supportchat/identity.json"
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// envBool возвращает булево значение переменной окружения или fallback.
func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
