package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/payslip-extractor/constants"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Inference  InferenceConfig
	Pipeline   PipelineConfig
	Raster     RasterConfig
	Batch      BatchConfig
	Validation ValidationConfig
}

// DatabaseConfig holds expected-record store configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// InferenceConfig describes the inference boundary.
type InferenceConfig struct {
	Backend        string // container | openai
	Endpoint       string
	Model          string
	APIKey         string
	ForceCPU       bool
	RateLimit      float64 // requests per second, 0 disables
	MaxConcurrency int
	Timeout        TimeoutConfig
	Generation     GenerationConfig
}

// TimeoutConfig feeds the per-attempt timeout formula.
type TimeoutConfig struct {
	Base          time.Duration
	PerPage       bool
	ScalingFactor float64
	Max           time.Duration
	CPUMultiplier float64
}

// GenerationConfig carries the decoding parameters sent with every attempt.
type GenerationConfig struct {
	MaxNewTokens  int
	Temperature   float64
	TopP          float64
	UseBeamSearch bool
	NumBeams      int
}

// PipelineConfig is the per-call extraction configuration.
type PipelineConfig struct {
	DocumentType    constants.DocumentType
	WindowMode      constants.WindowMode
	SelectedWindows []string
	StrictWindows   bool
	Overlap         float64
	MinSize         int
	Isolation       constants.IsolationMode
	ResolutionSteps []int
	Enhance         EnhanceConfig
	// Prompts maps window mode -> window name -> prompt text.
	Prompts map[string]map[string]string
	// Pages holds 1-based per-page overrides.
	Pages map[int]PageOverride
	// Precedence maps window mode -> field -> ordered regions.
	Precedence map[string]map[string][]string
}

type EnhanceConfig struct {
	Enabled    bool
	Contrast   float64
	Sharpen    float64
	Brightness float64
}

type PageOverride struct {
	WindowMode      constants.WindowMode
	SelectedWindows []string
}

// RasterConfig holds rasterization configuration
type RasterConfig struct {
	Backend  string // pdftoppm | container
	Pdftoppm string
	DPI      int
	MaxPages int

	// HeicConverter names the external HEIC converter; empty rejects HEIC input.
	HeicConverter string
}

type BatchConfig struct {
	Workers     int
	FileTimeout time.Duration
}

type ValidationConfig struct {
	AmountAbsTolerance float64
	AmountRelTolerance float64
	NameThreshold      float64
}

// DefaultPipelineConfig returns the payslip defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DocumentType:    constants.DocumentPayslip,
		WindowMode:      constants.WindowVertical,
		SelectedWindows: []string{constants.RegionTop, constants.RegionBottom},
		Overlap:         0.1,
		MinSize:         100,
		Isolation:       constants.IsolationAuto,
		ResolutionSteps: []int{1500, 1200, 1000, 800},
		Enhance: EnhanceConfig{
			Enabled:    true,
			Contrast:   1.8,
			Sharpen:    2.5,
			Brightness: 1.1,
		},
	}
}

// LoadConfig loads configuration from environment variables. A .env file in
// the working directory is read first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	pipeline := DefaultPipelineConfig()
	if m, ok := constants.ParseDocumentType(os.Getenv("DOCUMENT_TYPE")); ok {
		pipeline.DocumentType = m
		if m == constants.DocumentProperty {
			pipeline.WindowMode = constants.WindowWhole
			pipeline.SelectedWindows = nil
		}
	}
	if m, ok := constants.ParseWindowMode(os.Getenv("WINDOW_MODE")); ok {
		pipeline.WindowMode = m
		pipeline.SelectedWindows = nil
	}
	pipeline.SelectedWindows = getEnvAsList("SELECTED_WINDOWS", pipeline.SelectedWindows)
	pipeline.Overlap = getEnvAsFloat64("WINDOW_OVERLAP", pipeline.Overlap)
	pipeline.MinSize = getEnvAsInt("WINDOW_MIN_SIZE", pipeline.MinSize)
	if m, ok := constants.ParseIsolationMode(os.Getenv("MEMORY_ISOLATION")); ok {
		pipeline.Isolation = m
	}
	pipeline.ResolutionSteps = getEnvAsIntList("IMAGE_RESOLUTION_STEPS", pipeline.ResolutionSteps)
	pipeline.Enhance.Enabled = getEnvAsBool("IMAGE_ENHANCE", pipeline.Enhance.Enabled)

	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", "file:employees.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Inference: InferenceConfig{
			Backend:        getEnv("INFERENCE_BACKEND", "container"),
			Endpoint:       getEnv("INFERENCE_URL", "http://localhost:27842"),
			Model:          getEnv("INFERENCE_MODEL", "Qwen/Qwen2.5-VL-7B-Instruct"),
			APIKey:         getEnv("INFERENCE_API_KEY", ""),
			ForceCPU:       getEnvAsBool("FORCE_CPU", false),
			RateLimit:      getEnvAsFloat64("INFERENCE_RATE_LIMIT", 0),
			MaxConcurrency: getEnvAsInt("INFERENCE_MAX_CONCURRENCY", 1),
			Timeout: TimeoutConfig{
				Base:          getEnvAsDuration("INFERENCE_TIMEOUT", 1800*time.Second),
				PerPage:       getEnvAsBool("INFERENCE_TIMEOUT_PER_PAGE", true),
				ScalingFactor: getEnvAsFloat64("INFERENCE_TIMEOUT_SCALING", 1.0),
				Max:           getEnvAsDuration("INFERENCE_TIMEOUT_MAX", 14400*time.Second),
				CPUMultiplier: getEnvAsFloat64("INFERENCE_CPU_MULTIPLIER", 2.0),
			},
			Generation: GenerationConfig{
				MaxNewTokens:  getEnvAsInt("GEN_MAX_NEW_TOKENS", 768),
				Temperature:   getEnvAsFloat64("GEN_TEMPERATURE", 0.1),
				TopP:          getEnvAsFloat64("GEN_TOP_P", 0.95),
				UseBeamSearch: getEnvAsBool("GEN_USE_BEAM_SEARCH", false),
				NumBeams:      getEnvAsInt("GEN_NUM_BEAMS", 1),
			},
		},
		Pipeline: pipeline,
		Raster: RasterConfig{
			Backend:  getEnv("RASTER_BACKEND", "pdftoppm"),
			Pdftoppm: getEnv("PDFTOPPM", "pdftoppm"),
			DPI:      getEnvAsInt("PDF_DPI", 600),
			MaxPages: getEnvAsInt("PDF_MAX_PAGES", 0),

			HeicConverter: getEnv("HEIC_CONVERTER", ""),
		},
		Batch: BatchConfig{
			Workers:     getEnvAsInt("BATCH_WORKERS", 2),
			FileTimeout: getEnvAsDuration("BATCH_FILE_TIMEOUT", 0),
		},
		Validation: ValidationConfig{
			AmountAbsTolerance: getEnvAsFloat64("VALIDATION_AMOUNT_TOLERANCE", 0.01),
			AmountRelTolerance: getEnvAsFloat64("VALIDATION_AMOUNT_REL_TOLERANCE", 0),
			NameThreshold:      getEnvAsFloat64("VALIDATION_NAME_THRESHOLD", 0.85),
		},
	}
}

// LoadConfigFile loads env configuration and overlays the YAML profile at path.
func LoadConfigFile(path string) (*Config, error) {
	cfg := LoadConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := cfg.ApplyOverlay(b); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// fileConfig mirrors the YAML profile layout. Absent keys leave the current
// value untouched.
type fileConfig struct {
	Inference *struct {
		Backend              *string  `yaml:"backend"`
		Host                 *string  `yaml:"host"`
		Port                 *int     `yaml:"port"`
		URL                  *string  `yaml:"url"`
		Model                *string  `yaml:"model"`
		Timeout              *float64 `yaml:"timeout"`
		TimeoutPerPage       *bool    `yaml:"timeout_per_page"`
		TimeoutScalingFactor *float64 `yaml:"timeout_scaling_factor"`
		TimeoutMax           *float64 `yaml:"timeout_max"`
		CPUTimeoutMultiplier *float64 `yaml:"cpu_timeout_multiplier"`
		RateLimit            *float64 `yaml:"rate_limit"`
		MaxConcurrency       *int     `yaml:"max_concurrency"`
	} `yaml:"inference"`
	Processing *struct {
		WindowMode      *string   `yaml:"window_mode"`
		SelectedWindows *[]string `yaml:"selected_windows"`
		StrictWindows   *bool     `yaml:"strict_windows"`
		ForceCPU        *bool     `yaml:"force_cpu"`
		MemoryIsolation *string   `yaml:"memory_isolation"`
		DocumentType    *string   `yaml:"document_type"`
	} `yaml:"processing"`
	PDF *struct {
		DPI *int `yaml:"dpi"`
	} `yaml:"pdf"`
	Image *struct {
		ResolutionSteps  *[]int   `yaml:"resolution_steps"`
		Enhance          *bool    `yaml:"enhance"`
		ContrastFactor   *float64 `yaml:"contrast_factor"`
		SharpenFactor    *float64 `yaml:"sharpen_factor"`
		BrightnessFactor *float64 `yaml:"brightness_factor"`
	} `yaml:"image"`
	Window *struct {
		Overlap *float64 `yaml:"overlap"`
		MinSize *int     `yaml:"min_size"`
	} `yaml:"window"`
	TextGeneration *struct {
		MaxNewTokens  *int     `yaml:"max_new_tokens"`
		Temperature   *float64 `yaml:"temperature"`
		TopP          *float64 `yaml:"top_p"`
		UseBeamSearch *bool    `yaml:"use_beam_search"`
		NumBeams      *int     `yaml:"num_beams"`
	} `yaml:"text_generation"`
	Prompts map[string]map[string]string `yaml:"prompts"`
	Pages   map[string]struct {
		WindowMode      string   `yaml:"window_mode"`
		SelectedWindows []string `yaml:"selected_windows"`
	} `yaml:"pages"`
	Precedence map[string]map[string][]string `yaml:"precedence"`
	Validation *struct {
		AmountAbsTolerance *float64 `yaml:"amount_abs_tolerance"`
		AmountRelTolerance *float64 `yaml:"amount_rel_tolerance"`
		NameThreshold      *float64 `yaml:"name_threshold"`
	} `yaml:"validation"`
}

// ApplyOverlay merges a YAML (or JSON) profile into c.
func (c *Config) ApplyOverlay(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return ConfigurationErrorf("decode profile: %v", err)
	}

	if in := fc.Inference; in != nil {
		setString(&c.Inference.Backend, in.Backend)
		setString(&c.Inference.Model, in.Model)
		if in.Host != nil || in.Port != nil {
			host, port := "localhost", 27842
			setString(&host, in.Host)
			setInt(&port, in.Port)
			c.Inference.Endpoint = fmt.Sprintf("http://%s:%d", host, port)
		}
		setString(&c.Inference.Endpoint, in.URL)
		if in.Timeout != nil {
			c.Inference.Timeout.Base = seconds(*in.Timeout)
		}
		if in.TimeoutMax != nil {
			c.Inference.Timeout.Max = seconds(*in.TimeoutMax)
		}
		setBool(&c.Inference.Timeout.PerPage, in.TimeoutPerPage)
		setFloat(&c.Inference.Timeout.ScalingFactor, in.TimeoutScalingFactor)
		setFloat(&c.Inference.Timeout.CPUMultiplier, in.CPUTimeoutMultiplier)
		setFloat(&c.Inference.RateLimit, in.RateLimit)
		setInt(&c.Inference.MaxConcurrency, in.MaxConcurrency)
	}

	if p := fc.Processing; p != nil {
		if p.DocumentType != nil {
			dt, ok := constants.ParseDocumentType(*p.DocumentType)
			if !ok {
				return ConfigurationErrorf("unknown document_type %q", *p.DocumentType)
			}
			c.Pipeline.DocumentType = dt
		}
		if p.WindowMode != nil {
			m, ok := constants.ParseWindowMode(*p.WindowMode)
			if !ok {
				return ConfigurationErrorf("unknown window_mode %q", *p.WindowMode)
			}
			if m != c.Pipeline.WindowMode {
				c.Pipeline.SelectedWindows = nil
			}
			c.Pipeline.WindowMode = m
		}
		if p.SelectedWindows != nil {
			c.Pipeline.SelectedWindows = append([]string(nil), (*p.SelectedWindows)...)
		}
		setBool(&c.Pipeline.StrictWindows, p.StrictWindows)
		setBool(&c.Inference.ForceCPU, p.ForceCPU)
		if p.MemoryIsolation != nil {
			m, ok := constants.ParseIsolationMode(*p.MemoryIsolation)
			if !ok {
				return ConfigurationErrorf("unknown memory_isolation %q", *p.MemoryIsolation)
			}
			c.Pipeline.Isolation = m
		}
	}

	if fc.PDF != nil {
		setInt(&c.Raster.DPI, fc.PDF.DPI)
	}

	if img := fc.Image; img != nil {
		if img.ResolutionSteps != nil {
			c.Pipeline.ResolutionSteps = append([]int(nil), (*img.ResolutionSteps)...)
		}
		setBool(&c.Pipeline.Enhance.Enabled, img.Enhance)
		setFloat(&c.Pipeline.Enhance.Contrast, img.ContrastFactor)
		setFloat(&c.Pipeline.Enhance.Sharpen, img.SharpenFactor)
		setFloat(&c.Pipeline.Enhance.Brightness, img.BrightnessFactor)
	}

	if w := fc.Window; w != nil {
		setFloat(&c.Pipeline.Overlap, w.Overlap)
		setInt(&c.Pipeline.MinSize, w.MinSize)
	}

	if g := fc.TextGeneration; g != nil {
		setInt(&c.Inference.Generation.MaxNewTokens, g.MaxNewTokens)
		setFloat(&c.Inference.Generation.Temperature, g.Temperature)
		setFloat(&c.Inference.Generation.TopP, g.TopP)
		setBool(&c.Inference.Generation.UseBeamSearch, g.UseBeamSearch)
		setInt(&c.Inference.Generation.NumBeams, g.NumBeams)
	}

	if len(fc.Prompts) > 0 {
		if c.Pipeline.Prompts == nil {
			c.Pipeline.Prompts = map[string]map[string]string{}
		}
		for mode, byWindow := range fc.Prompts {
			if c.Pipeline.Prompts[mode] == nil {
				c.Pipeline.Prompts[mode] = map[string]string{}
			}
			for w, p := range byWindow {
				c.Pipeline.Prompts[mode][w] = p
			}
		}
	}

	if len(fc.Pages) > 0 {
		if c.Pipeline.Pages == nil {
			c.Pipeline.Pages = map[int]PageOverride{}
		}
		for key, po := range fc.Pages {
			n, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil || n < 1 {
				return ConfigurationErrorf("pages: invalid page number %q", key)
			}
			m, ok := constants.ParseWindowMode(po.WindowMode)
			if !ok && po.WindowMode != "" {
				return ConfigurationErrorf("page %d: unknown window_mode %q", n, po.WindowMode)
			}
			if po.WindowMode == "" {
				m = c.Pipeline.WindowMode
			}
			c.Pipeline.Pages[n] = PageOverride{WindowMode: m, SelectedWindows: po.SelectedWindows}
		}
	}

	if len(fc.Precedence) > 0 {
		if c.Pipeline.Precedence == nil {
			c.Pipeline.Precedence = map[string]map[string][]string{}
		}
		for mode, byField := range fc.Precedence {
			if c.Pipeline.Precedence[mode] == nil {
				c.Pipeline.Precedence[mode] = map[string][]string{}
			}
			for f, order := range byField {
				c.Pipeline.Precedence[mode][f] = order
			}
		}
	}

	if v := fc.Validation; v != nil {
		setFloat(&c.Validation.AmountAbsTolerance, v.AmountAbsTolerance)
		setFloat(&c.Validation.AmountRelTolerance, v.AmountRelTolerance)
		setFloat(&c.Validation.NameThreshold, v.NameThreshold)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("30m") or bare seconds ("1800").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			return seconds(secs)
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsIntList(key string, defaultValue []int) []int {
	parts := getEnvAsList(key, nil)
	if len(parts) == 0 {
		return defaultValue
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("inference.backend", c.Inference.Backend, OneOf("container", "openai"))
	v.Field("inference.endpoint", c.Inference.Endpoint, HTTPURL)
	v.Field("raster.backend", c.Raster.Backend, OneOf("pdftoppm", "container"))
	v.Field("raster.dpi", c.Raster.DPI, MinInt(36))
	v.Field("batch.workers", c.Batch.Workers, MinInt(1))
	v.Field("server.grpc_addr", c.Server.GRPCAddr, Required)
	v.Field("validation.name_threshold", c.Validation.NameThreshold, FloatRange(0, 1))
	if err := v.AsConfigurationError(); err != nil {
		return err
	}
	if err := c.Inference.ValidateCall(); err != nil {
		return err
	}
	return c.Pipeline.Validate()
}

// ValidateCall checks the inference settings a single call may override.
func (c InferenceConfig) ValidateCall() error {
	v := NewValidator()
	v.Field("inference.max_concurrency", c.MaxConcurrency, MinInt(1))
	v.Field("inference.timeout_scaling_factor", c.Timeout.ScalingFactor, FloatRange(0.01, 1000))
	v.Field("inference.cpu_timeout_multiplier", c.Timeout.CPUMultiplier, FloatRange(1, 1000))
	v.Field("inference.timeout", c.Timeout.Base, PositiveDuration)
	if c.Timeout.Max < c.Timeout.Base {
		v.Fail("inference.timeout_max", c.Timeout.Max, "must not be below inference.timeout")
	}
	return v.AsConfigurationError()
}

// Validate checks the per-call pipeline parameters.
func (p PipelineConfig) Validate() error {
	v := NewValidator()
	v.Field("window.overlap", p.Overlap, FloatRange(0, 0.5))
	v.Field("window.min_size", p.MinSize, MinInt(1))
	v.Field("image.resolution_steps", p.ResolutionSteps, Required, Descending)
	v.Field("processing.window_mode", string(p.WindowMode), OneOf(constants.WindowModesAsStrings()...))
	v.Field("processing.memory_isolation", string(p.Isolation), OneOf(
		string(constants.IsolationNone), string(constants.IsolationMedium),
		string(constants.IsolationStrict), string(constants.IsolationAuto)))
	if p.Enhance.Enabled {
		v.Field("image.contrast_factor", p.Enhance.Contrast, FloatRange(0, 10))
		v.Field("image.sharpen_factor", p.Enhance.Sharpen, FloatRange(0, 10))
		v.Field("image.brightness_factor", p.Enhance.Brightness, FloatRange(0, 10))
	}
	return v.AsConfigurationError()
}

// ForPage returns the window mode and selection that apply to 1-based page n.
func (p PipelineConfig) ForPage(n int) (constants.WindowMode, []string) {
	if o, ok := p.Pages[n]; ok {
		return o.WindowMode, o.SelectedWindows
	}
	return p.WindowMode, p.SelectedWindows
}

// Clone returns a deep copy so per-call overlays never touch shared defaults.
func (c *Config) Clone() *Config {
	out := *c
	out.Pipeline.SelectedWindows = append([]string(nil), c.Pipeline.SelectedWindows...)
	out.Pipeline.ResolutionSteps = append([]int(nil), c.Pipeline.ResolutionSteps...)
	if c.Pipeline.Prompts != nil {
		out.Pipeline.Prompts = make(map[string]map[string]string, len(c.Pipeline.Prompts))
		for k, m := range c.Pipeline.Prompts {
			inner := make(map[string]string, len(m))
			for w, p := range m {
				inner[w] = p
			}
			out.Pipeline.Prompts[k] = inner
		}
	}
	if c.Pipeline.Pages != nil {
		out.Pipeline.Pages = make(map[int]PageOverride, len(c.Pipeline.Pages))
		for k, v := range c.Pipeline.Pages {
			out.Pipeline.Pages[k] = v
		}
	}
	if c.Pipeline.Precedence != nil {
		out.Pipeline.Precedence = make(map[string]map[string][]string, len(c.Pipeline.Precedence))
		for k, m := range c.Pipeline.Precedence {
			inner := make(map[string][]string, len(m))
			for f, order := range m {
				inner[f] = append([]string(nil), order...)
			}
			out.Pipeline.Precedence[k] = inner
		}
	}
	return &out
}
