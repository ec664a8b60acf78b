package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/humanimpact/hii-stats/internal/logger"
	"github.com/humanimpact/hii-stats/services/stats/internal/apperr"
	"github.com/humanimpact/hii-stats/services/stats/internal/blob"
	"github.com/humanimpact/hii-stats/services/stats/internal/models"
	"github.com/humanimpact/hii-stats/services/stats/internal/regions"
)

// Source kinds for rasters and regions.
const (
	SourceDir  = "dir"
	SourceBlob = "blob"
)

// Reducer backends.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Sink kinds.
const (
	SinkFile     = "file"
	SinkBlob     = "blob"
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
)

// RasterConfig locates the raster series.
type RasterConfig struct {
	Source string
	Dir    string
	Prefix string
}

// RegionConfig locates the region collections.
type RegionConfig struct {
	Source        string
	CountriesPath string
	StatesPath    string
	IDProperty    string
	NameProperty  string
}

// ReducerConfig selects and tunes the zonal reducer.
type ReducerConfig struct {
	Backend     string
	URL         string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	MaxPixels   float64
}

// SinkConfig selects where batches are written.
type SinkConfig struct {
	Kind        string
	OutputDir   string
	Format      string
	Prefix      string
	DatabaseURL string
	SQLitePath  string
}

// Config holds runtime configuration for one stats run. It is built once
// by Load and not modified afterwards.
type Config struct {
	TaskDate   time.Time
	Overwrite  bool
	Cumulative bool
	DryRun     bool

	SeriesID     string
	MaxAgeDays   *int
	Scopes       []models.Scope
	Workers      int
	Dataset      string
	GlobalBounds orb.Bound

	Raster  RasterConfig
	Regions RegionConfig
	Reducer ReducerConfig
	Sink    SinkConfig
	MinIO   blob.Config
	Log     logger.Config

	PushgatewayURL string
}

// now is the clock used for the default task date.
var now = time.Now

// Load reads configuration from an optional .env file, environment
// variables, an optional YAML config file and finally the command flags.
func Load(flags *pflag.FlagSet) (Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range map[string]string{
			"taskdate":   "taskdate",
			"overwrite":  "overwrite",
			"cumulative": "cumulative",
			"dry_run":    "dry-run",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, apperr.Config("bind flag "+name, err)
				}
			}
		}
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return Config{}, apperr.Config("read config file", err)
			}
		}
	}

	return build(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("taskdate", "")
	v.SetDefault("overwrite", false)
	v.SetDefault("cumulative", false)
	v.SetDefault("dry_run", false)

	v.SetDefault("stats_series_id", "hii")
	v.SetDefault("stats_max_age_days", "365")
	v.SetDefault("stats_scopes", "global,country")
	v.SetDefault("stats_workers", 8)
	v.SetDefault("stats_dataset", models.DatasetName)
	v.SetDefault("global_bounds", "-180,-90,180,90")

	v.SetDefault("raster_source", SourceDir)
	v.SetDefault("raster_dir", "./data/rasters")
	v.SetDefault("raster_prefix", "rasters")

	v.SetDefault("region_source", SourceDir)
	v.SetDefault("region_countries_path", "./data/regions/countries.geojson")
	v.SetDefault("region_states_path", "")
	v.SetDefault("region_id_property", "iso3")
	v.SetDefault("region_name_property", "name")

	v.SetDefault("reducer_backend", BackendLocal)
	v.SetDefault("reducer_url", "")
	v.SetDefault("reducer_timeout", "5m")
	v.SetDefault("reducer_max_attempts", 4)
	v.SetDefault("reducer_backoff", "500ms")
	v.SetDefault("max_pixels", 1e15)

	v.SetDefault("sink", SinkFile)
	v.SetDefault("output_dir", "./out")
	v.SetDefault("output_format", "geojson")
	v.SetDefault("output_prefix", "")
	v.SetDefault("database_url", "")
	v.SetDefault("sqlite_path", "./out/hii-stats.db")

	v.SetDefault("minio_endpoint", "")
	v.SetDefault("minio_access_key", "")
	v.SetDefault("minio_secret_key", "")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("minio_bucket", "hii-stats")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("pushgateway_url", "")
}

func build(v *viper.Viper) (Config, error) {
	cfg := Config{
		Overwrite:  v.GetBool("overwrite"),
		Cumulative: v.GetBool("cumulative"),
		DryRun:     v.GetBool("dry_run"),
		SeriesID:   strings.TrimSpace(v.GetString("stats_series_id")),
		Workers:    v.GetInt("stats_workers"),
		Dataset:    strings.TrimSpace(v.GetString("stats_dataset")),
		Raster: RasterConfig{
			Source: strings.ToLower(v.GetString("raster_source")),
			Dir:    v.GetString("raster_dir"),
			Prefix: v.GetString("raster_prefix"),
		},
		Regions: RegionConfig{
			Source:        strings.ToLower(v.GetString("region_source")),
			CountriesPath: v.GetString("region_countries_path"),
			StatesPath:    v.GetString("region_states_path"),
			IDProperty:    v.GetString("region_id_property"),
			NameProperty:  v.GetString("region_name_property"),
		},
		Reducer: ReducerConfig{
			Backend:     strings.ToLower(v.GetString("reducer_backend")),
			URL:         strings.TrimSpace(v.GetString("reducer_url")),
			MaxAttempts: v.GetInt("reducer_max_attempts"),
			MaxPixels:   v.GetFloat64("max_pixels"),
		},
		Sink: SinkConfig{
			Kind:        strings.ToLower(v.GetString("sink")),
			OutputDir:   v.GetString("output_dir"),
			Format:      strings.ToLower(v.GetString("output_format")),
			Prefix:      v.GetString("output_prefix"),
			DatabaseURL: strings.TrimSpace(v.GetString("database_url")),
			SQLitePath:  v.GetString("sqlite_path"),
		},
		MinIO: blob.Config{
			Endpoint:  v.GetString("minio_endpoint"),
			AccessKey: v.GetString("minio_access_key"),
			SecretKey: v.GetString("minio_secret_key"),
			UseSSL:    v.GetBool("minio_use_ssl"),
			Bucket:    v.GetString("minio_bucket"),
		},
		Log: logger.Config{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
		PushgatewayURL: strings.TrimSpace(v.GetString("pushgateway_url")),
	}

	var err error
	if cfg.TaskDate, err = parseTaskDate(v.GetString("taskdate")); err != nil {
		return cfg, err
	}
	if cfg.MaxAgeDays, err = parseMaxAge(v.GetString("stats_max_age_days")); err != nil {
		return cfg, err
	}
	if cfg.Scopes, err = parseScopes(v.GetString("stats_scopes")); err != nil {
		return cfg, err
	}
	if cfg.GlobalBounds, err = regions.ParseBounds(v.GetString("global_bounds")); err != nil {
		return cfg, apperr.Config("invalid GLOBAL_BOUNDS", err)
	}
	if cfg.Reducer.Timeout, err = parseDuration("REDUCER_TIMEOUT", v.GetString("reducer_timeout")); err != nil {
		return cfg, err
	}
	if cfg.Reducer.Backoff, err = parseDuration("REDUCER_BACKOFF", v.GetString("reducer_backoff")); err != nil {
		return cfg, err
	}

	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseTaskDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		y, m, d := now().UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, apperr.Config(fmt.Sprintf("invalid task date %q, want YYYY-MM-DD", s), err)
	}
	return t, nil
}

// parseMaxAge reads STATS_MAX_AGE_DAYS; "none" (or empty) disables the
// staleness check.
func parseMaxAge(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, apperr.Config("invalid STATS_MAX_AGE_DAYS", err)
	}
	if n < 0 {
		return nil, apperr.Config("STATS_MAX_AGE_DAYS must not be negative", nil)
	}
	return &n, nil
}

func parseScopes(s string) ([]models.Scope, error) {
	var scopes []models.Scope
	seen := map[models.Scope]bool{}
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		scope, err := models.ParseScope(part)
		if err != nil {
			return nil, apperr.Config("invalid STATS_SCOPES", err)
		}
		if seen[scope] {
			continue
		}
		seen[scope] = true
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 {
		return nil, apperr.Config("STATS_SCOPES must name at least one scope", nil)
	}
	return scopes, nil
}

func parseDuration(name, s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, apperr.Config("invalid "+name, err)
	}
	return d, nil
}

// HasScope reports whether scope is enabled.
func (c Config) HasScope(scope models.Scope) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// NeedsBlob reports whether any component reads or writes the object store.
func (c Config) NeedsBlob() bool {
	return c.Raster.Source == SourceBlob || c.Regions.Source == SourceBlob || c.Sink.Kind == SinkBlob
}

func validate(cfg *Config) error {
	if cfg.SeriesID == "" {
		return apperr.Config("STATS_SERIES_ID is required", nil)
	}
	if cfg.Dataset == "" {
		return apperr.Config("STATS_DATASET is required", nil)
	}
	if cfg.Workers < 1 {
		return apperr.Config("STATS_WORKERS must be at least 1", nil)
	}

	switch cfg.Raster.Source {
	case SourceDir, SourceBlob:
	default:
		return apperr.Config(fmt.Sprintf("unknown RASTER_SOURCE %q", cfg.Raster.Source), nil)
	}
	switch cfg.Regions.Source {
	case SourceDir, SourceBlob:
	default:
		return apperr.Config(fmt.Sprintf("unknown REGION_SOURCE %q", cfg.Regions.Source), nil)
	}
	if cfg.HasScope(models.ScopeCountry) && cfg.Regions.CountriesPath == "" {
		return apperr.Config("REGION_COUNTRIES_PATH is required for the country scope", nil)
	}
	if cfg.HasScope(models.ScopeState) && cfg.Regions.StatesPath == "" {
		return apperr.Config("REGION_STATES_PATH is required for the state scope", nil)
	}

	switch cfg.Reducer.Backend {
	case BackendLocal:
	case BackendRemote:
		if cfg.Reducer.URL == "" {
			return apperr.Config("REDUCER_URL is required for the remote backend", nil)
		}
	default:
		return apperr.Config(fmt.Sprintf("unknown REDUCER_BACKEND %q", cfg.Reducer.Backend), nil)
	}
	if cfg.Reducer.MaxAttempts < 1 {
		return apperr.Config("REDUCER_MAX_ATTEMPTS must be at least 1", nil)
	}
	if !(cfg.Reducer.MaxPixels > 0) {
		return apperr.Config("MAX_PIXELS must be positive", nil)
	}

	switch cfg.Sink.Format {
	case "geojson", "csv":
	default:
		return apperr.Config(fmt.Sprintf("unknown OUTPUT_FORMAT %q", cfg.Sink.Format), nil)
	}
	switch cfg.Sink.Kind {
	case SinkFile, SinkBlob, SinkSQLite:
	case SinkPostgres:
		if cfg.Sink.DatabaseURL == "" {
			return apperr.Config("DATABASE_URL is required for the postgres sink", nil)
		}
	default:
		return apperr.Config(fmt.Sprintf("unknown SINK %q", cfg.Sink.Kind), nil)
	}

	if cfg.NeedsBlob() && cfg.MinIO.Endpoint == "" {
		return apperr.Config("MINIO_ENDPOINT is required when an object store is used", nil)
	}
	return nil
}
