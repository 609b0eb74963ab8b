package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string

	GeminiAPIKey  string
	GeminiModels  []string
	GeminiTimeout time.Duration

	OverpassMirrors []string
	OverpassTimeout time.Duration
	SearchRadius    int
	PlacesLimit     int

	VoskModelPath  string
	VoskSampleRate int
	FFmpegPath     string
	MaxAudioBytes  int

	EspeakVoice    string
	EspeakSpeed    int
	EspeakPitch    int
	SpeechMaxChars int

	DatabaseURL    string
	KnowledgeLimit int

	RequestTimeout time.Duration

	PlacesCacheTTL time.Duration
	StaleCacheTTL  time.Duration
	AudioCacheTTL  time.Duration
	CacheBackend   string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	WarmCache    bool
	WarmPhrases  []string
	WarmInterval time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	QueryMinLength int
	QueryMaxLength int

	DefaultLatitude  float64
	DefaultLongitude float64

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	DegradedRetryInitial   time.Duration
	DegradedRetryMax       time.Duration
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Gemini struct {
		Models  []string `yaml:"models"`
		Timeout string   `yaml:"timeout"`
	} `yaml:"gemini"`

	Overpass struct {
		Mirrors      []string `yaml:"mirrors"`
		Timeout      string   `yaml:"timeout"`
		SearchRadius int      `yaml:"search_radius"`
		PlacesLimit  int      `yaml:"places_limit"`
	} `yaml:"overpass"`

	Speech struct {
		VoskModelPath  string `yaml:"vosk_model_path"`
		VoskSampleRate int    `yaml:"vosk_sample_rate"`
		FFmpegPath     string `yaml:"ffmpeg_path"`
		MaxAudioMB     int    `yaml:"max_audio_mb"`
		EspeakVoice    string `yaml:"espeak_voice"`
		EspeakSpeed    int    `yaml:"espeak_speed"`
		EspeakPitch    int    `yaml:"espeak_pitch"`
		SpeechMaxChars int    `yaml:"speech_max_chars"`
	} `yaml:"speech"`

	Knowledge struct {
		Limit int `yaml:"limit"`
	} `yaml:"knowledge"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		PlacesTTL string `yaml:"places_ttl"`
		StaleTTL  string `yaml:"stale_ttl"`
		AudioTTL  string `yaml:"audio_ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warm         *bool    `yaml:"warm"`
		WarmPhrases  []string `yaml:"warm_phrases"`
		WarmInterval string   `yaml:"warm_interval"`
	} `yaml:"cache"`

	Coalesce struct {
		Enabled *bool  `yaml:"enabled"`
		Timeout string `yaml:"timeout"`
	} `yaml:"coalesce"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Validation struct {
		QueryMinLength int `yaml:"query_min_length"`
		QueryMaxLength int `yaml:"query_max_length"`
	} `yaml:"validation"`

	Location struct {
		DefaultLatitude  *float64 `yaml:"default_latitude"`
		DefaultLongitude *float64 `yaml:"default_longitude"`
	} `yaml:"location"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
		DegradedRetryInitial   string `yaml:"degraded_retry_initial"`
		DegradedRetryMax       string `yaml:"degraded_retry_max"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	GeminiAPIKey string `yaml:"gemini_api_key"`
	DatabaseURL  string `yaml:"database_url"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml. GEMINI_API_KEY and DATABASE_URL come from env or the
// secrets file; both are optional and their absence only limits the pipeline
// (canned answers, built-in guides). Call from project root.
func Load() (*Config, error) {
	// .env is a convenience for local runs; absence is not an error.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	var sec secretsFile
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	if secretsData, err := os.ReadFile(secretsPath); err == nil {
		if err := yaml.Unmarshal(secretsData, &sec); err != nil {
			return nil, fmt.Errorf("parse secrets file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = sec.GeminiAPIKey
	}
	cfg.GeminiModels = fc.Gemini.Models
	if len(cfg.GeminiModels) == 0 {
		cfg.GeminiModels = []string{"gemini-1.5-flash", "gemini-2.0-flash", "gemini-2.0-flash-lite"}
	}
	cfg.GeminiTimeout = parseDuration(fc.Gemini.Timeout, 20*time.Second)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = sec.DatabaseURL
	}
	cfg.KnowledgeLimit = fc.Knowledge.Limit
	if cfg.KnowledgeLimit <= 0 {
		cfg.KnowledgeLimit = 2
	}

	cfg.OverpassMirrors = fc.Overpass.Mirrors
	if len(cfg.OverpassMirrors) == 0 {
		cfg.OverpassMirrors = []string{
			"https://overpass-api.de/api/interpreter",
			"https://overpass.kumi.systems/api/interpreter",
			"https://overpass.osm.ch/api/interpreter",
		}
	}
	cfg.OverpassTimeout = parseDurationOrZero(fc.Overpass.Timeout, 15*time.Second)
	cfg.SearchRadius = fc.Overpass.SearchRadius
	if cfg.SearchRadius <= 0 {
		cfg.SearchRadius = 5000
	}
	cfg.PlacesLimit = fc.Overpass.PlacesLimit
	if cfg.PlacesLimit <= 0 {
		cfg.PlacesLimit = 10
	}

	cfg.VoskModelPath = strings.TrimSpace(os.Getenv("VOSK_MODEL_PATH"))
	if cfg.VoskModelPath == "" {
		cfg.VoskModelPath = fc.Speech.VoskModelPath
	}
	if cfg.VoskModelPath == "" {
		cfg.VoskModelPath = filepath.Join(cwd, "vosk_models", "vosk-model-small-hi-0.22")
	}
	cfg.VoskSampleRate = fc.Speech.VoskSampleRate
	if cfg.VoskSampleRate <= 0 {
		cfg.VoskSampleRate = 16000
	}
	cfg.FFmpegPath = fc.Speech.FFmpegPath
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	cfg.MaxAudioBytes = fc.Speech.MaxAudioMB * 1024 * 1024
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = 10 * 1024 * 1024
	}
	cfg.EspeakVoice = fc.Speech.EspeakVoice
	if cfg.EspeakVoice == "" {
		cfg.EspeakVoice = "hi"
	}
	cfg.EspeakSpeed = fc.Speech.EspeakSpeed
	if cfg.EspeakSpeed <= 0 {
		cfg.EspeakSpeed = 130
	}
	cfg.EspeakPitch = fc.Speech.EspeakPitch
	if cfg.EspeakPitch <= 0 {
		cfg.EspeakPitch = 50
	}
	cfg.SpeechMaxChars = fc.Speech.SpeechMaxChars
	if cfg.SpeechMaxChars <= 0 {
		cfg.SpeechMaxChars = 350
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.PlacesCacheTTL = parseDuration(fc.Cache.PlacesTTL, 5*time.Minute)
	cfg.StaleCacheTTL = parseDurationOrZero(fc.Cache.StaleTTL, 30*time.Minute)
	cfg.AudioCacheTTL = parseDuration(fc.Cache.AudioTTL, time.Hour)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	if fc.Cache.Warm != nil {
		cfg.WarmCache = *fc.Cache.Warm
	}
	cfg.WarmPhrases = fc.Cache.WarmPhrases
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)

	cfg.CoalesceEnabled = true
	if fc.Coalesce.Enabled != nil {
		cfg.CoalesceEnabled = *fc.Coalesce.Enabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Coalesce.Timeout, 20*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cfg.CircuitBreakerEnabled = true
	if fc.Reliability.CircuitBreaker.Enabled != nil {
		cfg.CircuitBreakerEnabled = *fc.Reliability.CircuitBreaker.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.QueryMinLength = fc.Validation.QueryMinLength
	if cfg.QueryMinLength <= 0 {
		cfg.QueryMinLength = 2
	}
	cfg.QueryMaxLength = fc.Validation.QueryMaxLength
	if cfg.QueryMaxLength <= 0 {
		cfg.QueryMaxLength = 500
	}

	// Delhi, the same default the built-in guides assume.
	cfg.DefaultLatitude = 28.6139
	cfg.DefaultLongitude = 77.2090
	if fc.Location.DefaultLatitude != nil {
		cfg.DefaultLatitude = *fc.Location.DefaultLatitude
	}
	if fc.Location.DefaultLongitude != nil {
		cfg.DefaultLongitude = *fc.Location.DefaultLongitude
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}
	cfg.DegradedRetryInitial = parseDuration(fc.Lifecycle.DegradedRetryInitial, 1*time.Minute)
	cfg.DegradedRetryMax = parseDuration(fc.Lifecycle.DegradedRetryMax, 20*time.Minute)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. The request timeout must cover the
// slowest collaborator (Gemini) with headroom; the cache backend must be a
// known value; default coordinates must be on the globe.
func validate(cfg *Config) error {
	if cfg.OverpassTimeout <= 0 {
		return fmt.Errorf("overpass.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.GeminiTimeout {
		cfg.RequestTimeout = cfg.GeminiTimeout + 5*time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.DefaultLatitude < -90 || cfg.DefaultLatitude > 90 {
		return fmt.Errorf("location.default_latitude out of range: %v", cfg.DefaultLatitude)
	}
	if cfg.DefaultLongitude < -180 || cfg.DefaultLongitude > 180 {
		return fmt.Errorf("location.default_longitude out of range: %v", cfg.DefaultLongitude)
	}
	if cfg.QueryMinLength > cfg.QueryMaxLength {
		return fmt.Errorf("validation.query_min_length %d exceeds query_max_length %d", cfg.QueryMinLength, cfg.QueryMaxLength)
	}
	return nil
}
