package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Cron       CronConfig       `mapstructure:"cron"`
	NewsFeed   NewsFeedConfig   `mapstructure:"newsfeed"`
	Watchlist  []WatchlistEntry `mapstructure:"watchlist"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Feedback   FeedbackConfig   `mapstructure:"feedback"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	HistoryPrune string `mapstructure:"history_prune"`
	CacheSweep   string `mapstructure:"cache_sweep"`
}

type NewsFeedConfig struct {
	FeedURLTemplate string        `mapstructure:"feed_url_template"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	StaleMaxAge     time.Duration `mapstructure:"stale_max_age"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	RequestBurst    int           `mapstructure:"request_burst"`
}

type WatchlistEntry struct {
	Code string `mapstructure:"code"`
	Name string `mapstructure:"name"`
}

type ScoringConfig struct {
	FetchLimit       int            `mapstructure:"fetch_limit"`
	PreviewLimit     int            `mapstructure:"preview_limit"`
	BaselineSamples  int            `mapstructure:"baseline_samples"`
	DupPenaltyScale  int            `mapstructure:"dup_penalty_scale"`
	DupMinBatch      int            `mapstructure:"dup_min_batch"`
	PositiveKeywords []string       `mapstructure:"positive_keywords"`
	NegativeKeywords []string       `mapstructure:"negative_keywords"`
	ImpactPositive   map[string]int `mapstructure:"impact_positive"`
	ImpactNegative   map[string]int `mapstructure:"impact_negative"`
}

type FeedbackConfig struct {
	LookbackHours       int                `mapstructure:"lookback_hours"`
	MinVotes            int                `mapstructure:"min_votes"`
	ConsensusThreshold  float64            `mapstructure:"consensus_threshold"`
	AIMismatchThreshold float64            `mapstructure:"ai_mismatch_threshold"`
	DeltaConsensus      int                `mapstructure:"delta_consensus"`
	DeltaAIMismatch     int                `mapstructure:"delta_ai_mismatch"`
	RuleBoost           int                `mapstructure:"rule_boost"`
	TierWeights         map[string]float64 `mapstructure:"tier_weights"`
}

type MonitoringConfig struct {
	Autostart    bool            `mapstructure:"autostart"`
	AlertLimit   int             `mapstructure:"alert_limit"`
	MinScore     int             `mapstructure:"min_score"`
	HistoryLimit int             `mapstructure:"history_limit"`
	RunTimeout   time.Duration   `mapstructure:"run_timeout"`
	Retention    RetentionConfig `mapstructure:"retention"`
	Windows      []WindowConfig  `mapstructure:"windows"`
	Adaptive     AdaptiveConfig  `mapstructure:"adaptive"`
}

type RetentionConfig struct {
	Days    int `mapstructure:"days"`
	MaxRows int `mapstructure:"max_rows"`
}

type WindowConfig struct {
	Name     string        `mapstructure:"name"`
	Start    string        `mapstructure:"start"`
	End      string        `mapstructure:"end"`
	Interval time.Duration `mapstructure:"interval"`
}

type AdaptiveConfig struct {
	Enabled  bool                             `mapstructure:"enabled"`
	Profiles map[string]AdaptiveProfileConfig `mapstructure:"profiles"`
}

type AdaptiveProfileConfig struct {
	TargetAlertCount int `mapstructure:"target_alert_count"`
	AlertBand        int `mapstructure:"alert_band"`
	ScoreStep        int `mapstructure:"score_step"`
	MinBound         int `mapstructure:"min_bound"`
	MaxBound         int `mapstructure:"max_bound"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.history_prune", "@every 1h")
	v.SetDefault("cron.cache_sweep", "@every 10m")

	v.SetDefault("newsfeed.feed_url_template", "https://news.google.com/rss/search?q=%s")
	v.SetDefault("newsfeed.timeout", "10s")
	v.SetDefault("newsfeed.max_retries", 2)
	v.SetDefault("newsfeed.retry_backoff", "500ms")
	v.SetDefault("newsfeed.cache_ttl", "90s")
	v.SetDefault("newsfeed.stale_max_age", "30m")
	v.SetDefault("newsfeed.requests_per_sec", 1.0)
	v.SetDefault("newsfeed.request_burst", 2)

	v.SetDefault("scoring.fetch_limit", 30)
	v.SetDefault("scoring.preview_limit", 3)
	v.SetDefault("scoring.baseline_samples", 40)
	v.SetDefault("scoring.dup_penalty_scale", 15)
	v.SetDefault("scoring.dup_min_batch", 10)
	v.SetDefault("scoring.positive_keywords", []string{
		"surge", "rally", "record", "profit", "growth", "approval",
		"patent", "expansion", "dividend", "buyback", "partnership", "upgrade",
	})
	v.SetDefault("scoring.negative_keywords", []string{
		"plunge", "loss", "decline", "halt", "delay", "lawsuit",
		"sanction", "probe", "recall", "strike", "downgrade", "warning",
	})
	v.SetDefault("scoring.impact_positive", map[string]int{
		"earnings surprise": 8,
		"order win":         12,
		"contract":          10,
		"mass production":   10,
		"approval":          10,
		"record high":       12,
		"buyback":           7,
	})
	v.SetDefault("scoring.impact_negative", map[string]int{
		"deficit":   12,
		"lawsuit":   10,
		"sanction":  12,
		"recall":    10,
		"layoff":    8,
		"halt":      8,
		"downgrade": 8,
	})

	v.SetDefault("feedback.lookback_hours", 72)
	v.SetDefault("feedback.min_votes", 5)
	v.SetDefault("feedback.consensus_threshold", 0.75)
	v.SetDefault("feedback.ai_mismatch_threshold", 0.5)
	v.SetDefault("feedback.delta_consensus", 5)
	v.SetDefault("feedback.delta_ai_mismatch", 4)
	v.SetDefault("feedback.rule_boost", 2)
	v.SetDefault("feedback.tier_weights", map[string]float64{
		"core":     1.8,
		"general":  1.0,
		"observer": 0.7,
	})

	v.SetDefault("monitoring.autostart", false)
	v.SetDefault("monitoring.alert_limit", 20)
	v.SetDefault("monitoring.min_score", 0)
	v.SetDefault("monitoring.history_limit", 200)
	v.SetDefault("monitoring.run_timeout", "2m")
	v.SetDefault("monitoring.retention.days", 30)
	v.SetDefault("monitoring.retention.max_rows", 20000)
	v.SetDefault("monitoring.windows", []map[string]any{
		{"name": "pre_market", "start": "08:00", "end": "09:00", "interval": "3m"},
		{"name": "market_open", "start": "09:00", "end": "15:30", "interval": "1m"},
		{"name": "after_close", "start": "15:30", "end": "18:00", "interval": "5m"},
		{"name": "night_watch", "start": "18:00", "end": "08:00", "interval": "30m"},
	})
	v.SetDefault("monitoring.adaptive.enabled", false)
	v.SetDefault("monitoring.adaptive.profiles", map[string]map[string]any{
		"pre_market":  {"target_alert_count": 2, "alert_band": 1, "score_step": 5, "min_bound": 0, "max_bound": 70},
		"market_open": {"target_alert_count": 4, "alert_band": 1, "score_step": 5, "min_bound": 0, "max_bound": 80},
		"after_close": {"target_alert_count": 2, "alert_band": 1, "score_step": 5, "min_bound": 5, "max_bound": 80},
		"night_watch": {"target_alert_count": 1, "alert_band": 0, "score_step": 5, "min_bound": 10, "max_bound": 90},
	})
	v.SetDefault("watchlist", []map[string]any{
		{"code": "005930", "name": "Samsung Electronics"},
		{"code": "000660", "name": "SK Hynix"},
		{"code": "035720", "name": "Kakao"},
		{"code": "051910", "name": "LG Chem"},
		{"code": "006400", "name": "Samsung SDI"},
	})

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
