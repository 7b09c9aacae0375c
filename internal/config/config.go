package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Sinks   []string
	Sink    SinkConfig
	Input   InputConfig
	Extract ExtractConfig
	Metrics MetricsConfig
	Log     LogConfig
	Watch   bool
}

type SinkConfig struct {
	CSV        CSVConfig
	SQLite     SQLiteConfig
	BatchSize  int
	FlushMaxMS int
}

type CSVConfig struct {
	Path string
}

type SQLiteConfig struct {
	Path   string
	Tuning bool
}

type InputConfig struct {
	Glob       string
	Workers    int
	StrictUTF8 bool
}

type ExtractConfig struct {
	IDPrefix  string
	RulesFile string
}

type MetricsConfig struct {
	File string
	Addr string
}

type LogConfig struct {
	Level         string
	DebugDrops    bool
	DropSummaryMS int
}

const (
	SinkCSV    = "csv"
	SinkSQLite = "sqlite"

	defaultSinks         = SinkCSV
	defaultCSVPath       = "whatsapp_chats.csv"
	defaultSQLitePath    = "whatsapp_chats.db"
	defaultBatchSize     = 500
	defaultFlushMS       = 0
	defaultInputGlob     = "_chat*.txt"
	defaultWorkers       = 1
	defaultIDPrefix      = "PRO"
	defaultLogLevel      = "info"
	defaultDropSummaryMS = 10000
)

func Load() Config {
	cfg := Config{}

	raw := strings.TrimSpace(os.Getenv("WACHAT_SINKS"))
	if raw == "" {
		raw = defaultSinks
	}
	cfg.Sinks = splitList(raw)

	cfg.Sink.CSV.Path = readString("WACHAT_CSV_PATH", defaultCSVPath)
	cfg.Sink.SQLite.Path = readString("WACHAT_SQLITE_PATH", defaultSQLitePath)
	cfg.Sink.SQLite.Tuning = readBool("WACHAT_SQLITE_TUNING", false)
	cfg.Sink.BatchSize = readInt("WACHAT_BATCH_SIZE", defaultBatchSize)
	cfg.Sink.FlushMaxMS = readInt("WACHAT_FLUSH_MAX_MS", defaultFlushMS)

	cfg.Input.Glob = readString("WACHAT_INPUT_GLOB", defaultInputGlob)
	cfg.Input.Workers = readInt("WACHAT_WORKERS", defaultWorkers)
	cfg.Input.StrictUTF8 = readBool("WACHAT_STRICT_UTF8", true)

	cfg.Extract.IDPrefix = readString("WACHAT_ID_PREFIX", defaultIDPrefix)
	cfg.Extract.RulesFile = strings.TrimSpace(os.Getenv("WACHAT_RULES_FILE"))

	cfg.Metrics.File = strings.TrimSpace(os.Getenv("WACHAT_METRICS_FILE"))
	cfg.Metrics.Addr = strings.TrimSpace(os.Getenv("WACHAT_METRICS_ADDR"))

	cfg.Log.Level = strings.ToLower(readString("WACHAT_LOG_LEVEL", defaultLogLevel))
	cfg.Log.DebugDrops = readBool("WACHAT_DEBUG_DROPS", false)
	cfg.Log.DropSummaryMS = readInt("WACHAT_DROP_SUMMARY_MS", defaultDropSummaryMS)

	cfg.Watch = readBool("WACHAT_WATCH", false)

	return cfg
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, strings.ToLower(p))
	}
	return dedupe(out)
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(v))
	}
	sort.Strings(out)
	return out
}

func readString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func (c Config) Summary() Summary {
	return Summary{
		Sinks:      append([]string(nil), c.Sinks...),
		CSVPath:    c.Sink.CSV.Path,
		SQLitePath: c.Sink.SQLite.Path,
		BatchSize:  c.Sink.BatchSize,
		FlushMaxMS: c.Sink.FlushMaxMS,
		InputGlob:  c.Input.Glob,
		Workers:    c.Input.Workers,
		StrictUTF8: c.Input.StrictUTF8,
		IDPrefix:   c.Extract.IDPrefix,
		RulesFile:  c.Extract.RulesFile,
		Metrics: MetricsSummary{
			File: c.Metrics.File,
			Addr: c.Metrics.Addr,
		},
		LogLevel: c.Log.Level,
		Watch:    c.Watch,
	}
}

type Summary struct {
	Sinks      []string       `json:"sinks"`
	CSVPath    string         `json:"csv_path,omitempty"`
	SQLitePath string         `json:"sqlite_path,omitempty"`
	BatchSize  int            `json:"batch"`
	FlushMaxMS int            `json:"flush_ms"`
	InputGlob  string         `json:"input_glob"`
	Workers    int            `json:"workers"`
	StrictUTF8 bool           `json:"strict_utf8"`
	IDPrefix   string         `json:"id_prefix"`
	RulesFile  string         `json:"rules_file,omitempty"`
	Metrics    MetricsSummary `json:"metrics"`
	LogLevel   string         `json:"log_level"`
	Watch      bool           `json:"watch"`
}

type MetricsSummary struct {
	File string `json:"file,omitempty"`
	Addr string `json:"addr,omitempty"`
}

func (c Config) HasSink(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range c.Sinks {
		if strings.ToLower(strings.TrimSpace(s)) == name {
			return true
		}
	}
	return false
}

func (c Config) FlushInterval() time.Duration {
	if c.Sink.FlushMaxMS <= 0 {
		return 0
	}
	return time.Duration(c.Sink.FlushMaxMS) * time.Millisecond
}

func (c Config) Batch() int {
	if c.Sink.BatchSize <= 0 {
		return defaultBatchSize
	}
	return c.Sink.BatchSize
}

func (c Config) Workers() int {
	if c.Input.Workers <= 0 {
		return defaultWorkers
	}
	return c.Input.Workers
}

func (c Config) DropSummaryInterval() time.Duration {
	if c.Log.DropSummaryMS <= 0 {
		return time.Duration(defaultDropSummaryMS) * time.Millisecond
	}
	return time.Duration(c.Log.DropSummaryMS) * time.Millisecond
}

// LogLevel maps the configured level name; unknown names fall back to info.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) SummaryJSON() []byte {
	summary := struct {
		Config Summary `json:"config_summary"`
	}{Config: c.Summary()}
	data, _ := json.Marshal(summary)
	return data
}
