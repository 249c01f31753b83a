package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known backend names per concern. Used by
// [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"capture":     {"ffmpeg", "mock"},
	"recognition": {"deepgram", "mock"},
}

// knownMIMETypes are the encoded-recording containers the capture layer can
// negotiate.
var knownMIMETypes = []string{"audio/webm", "audio/mp4", "audio/ogg"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Backend name validation — warn for unknown names.
	validateProviderName("capture", cfg.Capture.Name)
	validateProviderName("recognition", cfg.Recognition.Name)

	// Recording
	if cfg.Recording.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("recording.max_duration %s is negative", cfg.Recording.MaxDuration))
	}
	for i, mt := range cfg.Recording.MIMETypes {
		if !slices.Contains(knownMIMETypes, mt) {
			errs = append(errs, fmt.Errorf("recording.mime_types[%d] %q is unknown; valid values: %v", i, mt, knownMIMETypes))
		}
	}

	// Recognition
	if cfg.Recognition.Name == "deepgram" && cfg.Recognition.APIKey == "" {
		errs = append(errs, errors.New("recognition.api_key is required when recognition.name is deepgram"))
	}
	if cfg.Recognition.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("recognition.sample_rate %d is negative", cfg.Recognition.SampleRate))
	}
	if cfg.Recognition.Name == "" && len(cfg.Widgets) > 0 {
		slog.Warn("no recognition provider configured; voice responses will not be transcribed")
	}

	// Widget duplicate id detection
	widgetIDsSeen := make(map[string]int, len(cfg.Widgets))

	// Widgets
	for i, w := range cfg.Widgets {
		prefix := fmt.Sprintf("widgets[%d]", i)
		if w.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if prev, ok := widgetIDsSeen[w.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of widgets[%d]", prefix, w.ID, prev))
		}
		widgetIDsSeen[w.ID] = i
	}

	// Quizzes
	quizIDsSeen := make(map[string]int, len(cfg.Quizzes))
	for i, q := range cfg.Quizzes {
		prefix := fmt.Sprintf("quizzes[%d]", i)
		if q.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
			continue
		}
		if prev, ok := quizIDsSeen[q.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of quizzes[%d]", prefix, q.ID, prev))
		}
		quizIDsSeen[q.ID] = i
		if len(q.Questions) == 0 {
			errs = append(errs, fmt.Errorf("%s has no questions", prefix))
		}
		for j, question := range q.Questions {
			correct := false
			for _, c := range question.Choices {
				if c.Correct {
					correct = true
					break
				}
			}
			if !correct {
				errs = append(errs, fmt.Errorf("%s.questions[%d] has no correct choice", prefix, j))
			}
		}
	}

	// Progress availability
	if cfg.Progress.PostgresDSN == "" && len(cfg.Widgets) > 0 {
		slog.Warn("progress.postgres_dsn is empty; learner progress will be kept in memory only")
	}

	// Thresholds
	if t := cfg.Assess.PassThreshold; t != 0 && (t <= 0 || t > 1) {
		errs = append(errs, fmt.Errorf("assess.pass_threshold %.2f is out of range (0, 1]", t))
	}
	if t := cfg.Assess.WordThreshold; t != 0 && (t <= 0 || t > 1) {
		errs = append(errs, fmt.Errorf("assess.word_threshold %.2f is out of range (0, 1]", t))
	}
	if t := cfg.Quiz.MinPassScore; t != 0 && (t <= 0 || t > 1) {
		errs = append(errs, fmt.Errorf("quiz.min_pass_score %.2f is out of range (0, 1]", t))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown backend name — may be a typo or third-party backend",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
