package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// Supported publisher types.
	TypeQueue = "queue"
	TypeHTTP  = "http"

	// Supported queue providers.
	QueueProviderAWSSQS = "aws-sqs"
	QueueProviderAWSSNS = "aws-sns"
	QueueProviderGCP    = "gcp"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

type publishersFile struct {
	Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
}

// PublisherConfig is one downstream sink for enriched feed items.
type PublisherConfig struct {
	ID      string                `json:"id" yaml:"id"`
	Type    string                `json:"type" yaml:"type"`
	Enabled *bool                 `json:"enabled" yaml:"enabled"`
	Sources []string              `json:"sources" yaml:"sources"`
	Queue   *QueuePublisherConfig `json:"queue" yaml:"queue"`
	HTTP    *HTTPPublisherConfig  `json:"http" yaml:"http"`

	// IncludeDegraded also forwards items whose detail was unavailable.
	IncludeDegraded bool `json:"include_degraded" yaml:"include_degraded"`
}

// QueuePublisherConfig selects a cloud queue provider.
type QueuePublisherConfig struct {
	Provider string                 `json:"provider" yaml:"provider"`
	AWS      *AWSSQSPublisherConfig `json:"aws" yaml:"aws"`
	SNS      *AWSSNSPublisherConfig `json:"sns" yaml:"sns"`
	GCP      *GCPQueueConfig        `json:"gcp" yaml:"gcp"`
}

// AWSSQSPublisherConfig holds AWS SQS specific settings.
type AWSSQSPublisherConfig struct {
	QueueURL        string `json:"uri" yaml:"uri"`
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// AWSSNSPublisherConfig holds AWS SNS specific settings.
type AWSSNSPublisherConfig struct {
	TopicARN        string `json:"topic_arn" yaml:"topic_arn"`
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// GCPQueueConfig holds the Pub/Sub topic settings.
type GCPQueueConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// HTTPPublisherConfig holds webhook sink settings.
type HTTPPublisherConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// ConfigRegistry holds publisher definitions loaded from a file.
type ConfigRegistry struct {
	mu         sync.RWMutex
	publishers []PublisherConfig
	idx        map[string]PublisherConfig
}

// LoadRegistry loads the publisher registry from a YAML/JSON file. ${VAR}
// references are expanded from the environment so credentials stay out of
// the file.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}
	return ParseRegistry([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
}

// ParseRegistry decodes and validates publishers file content.
func ParseRegistry(data []byte, ext string) (*ConfigRegistry, error) {
	var file publishersFile
	if err := decode(data, ext, &file); err != nil {
		return nil, err
	}
	if len(file.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	reg := &ConfigRegistry{
		publishers: make([]PublisherConfig, 0, len(file.Publishers)),
		idx:        make(map[string]PublisherConfig, len(file.Publishers)),
	}
	for i, entry := range file.Publishers {
		cfg := entry.normalized()
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, exists := reg.idx[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		reg.publishers = append(reg.publishers, cfg)
		reg.idx[cfg.ID] = cfg
	}
	return reg, nil
}

func decode(data []byte, ext string, out *publishersFile) error {
	switch strings.ToLower(strings.TrimSpace(ext)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode yaml publishers: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode json publishers: %w", err)
		}
	case "":
		if yaml.Unmarshal(data, out) != nil && json.Unmarshal(data, out) != nil {
			return errors.New("publishers file format not recognized (expected YAML or JSON)")
		}
	default:
		return fmt.Errorf("publishers file extension %q not supported", ext)
	}
	return nil
}

func (cfg PublisherConfig) normalized() PublisherConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Enabled == nil {
		def := true
		cfg.Enabled = &def
	}
	sources := make([]string, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			sources = append(sources, s)
		}
	}
	cfg.Sources = sources

	if cfg.Queue != nil {
		qc := *cfg.Queue
		qc.Provider = strings.ToLower(strings.TrimSpace(qc.Provider))
		if qc.AWS != nil {
			a := *qc.AWS
			trimAll(&a.QueueURL, &a.Region, &a.AccessKeyID, &a.SecretAccessKey)
			qc.AWS = &a
		}
		if qc.SNS != nil {
			s := *qc.SNS
			trimAll(&s.TopicARN, &s.Region, &s.AccessKeyID, &s.SecretAccessKey)
			qc.SNS = &s
		}
		if qc.GCP != nil {
			g := *qc.GCP
			trimAll(&g.ProjectID, &g.Topic, &g.CredentialsFile)
			qc.GCP = &g
		}
		cfg.Queue = &qc
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		c.URL = strings.TrimSpace(c.URL)
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = httpDefaultMethod
		}
		c.Headers = sanitizeHeaders(c.Headers)
		if c.TimeoutSeconds <= 0 {
			c.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		cfg.HTTP = &c
	}
	return cfg
}

func trimAll(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

// sanitizeHeaders trims and removes empty headers.
func sanitizeHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key, val := strings.TrimSpace(k), strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (cfg PublisherConfig) validate() error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	switch cfg.Type {
	case "":
		return fmt.Errorf("type is required for publisher %q", cfg.ID)
	case TypeQueue:
		if cfg.Queue == nil {
			return fmt.Errorf("queue config required for publisher %q", cfg.ID)
		}
		return cfg.Queue.validate(cfg.ID)
	case TypeHTTP:
		if cfg.HTTP == nil || cfg.HTTP.URL == "" {
			return fmt.Errorf("http.url is required for publisher %q", cfg.ID)
		}
		return nil
	default:
		return fmt.Errorf("type %q not supported for publisher %q", cfg.Type, cfg.ID)
	}
}

func (qc *QueuePublisherConfig) validate(id string) error {
	var required map[string]string
	switch qc.Provider {
	case QueueProviderAWSSQS:
		if qc.AWS == nil {
			return fmt.Errorf("sqs config required for publisher %q", id)
		}
		required = map[string]string{
			"sqs.uri": qc.AWS.QueueURL, "sqs.region": qc.AWS.Region,
			"sqs.access_key_id": qc.AWS.AccessKeyID, "sqs.secret_access_key": qc.AWS.SecretAccessKey,
		}
	case QueueProviderAWSSNS:
		if qc.SNS == nil {
			return fmt.Errorf("sns config required for publisher %q", id)
		}
		required = map[string]string{
			"sns.topic_arn": qc.SNS.TopicARN, "sns.region": qc.SNS.Region,
			"sns.access_key_id": qc.SNS.AccessKeyID, "sns.secret_access_key": qc.SNS.SecretAccessKey,
		}
	case QueueProviderGCP:
		if qc.GCP == nil {
			return fmt.Errorf("gcp config required for publisher %q", id)
		}
		required = map[string]string{"gcp.project_id": qc.GCP.ProjectID, "gcp.topic": qc.GCP.Topic}
	default:
		return fmt.Errorf("queue provider %q not supported for publisher %q", qc.Provider, id)
	}

	var missing []string
	for field, val := range required {
		if val == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%s required for publisher %q", strings.Join(missing, ", "), id)
	}
	return nil
}

// ByID returns the publisher config by id.
func (r *ConfigRegistry) ByID(id string) (PublisherConfig, bool) {
	if r == nil {
		return PublisherConfig{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.idx[strings.TrimSpace(id)]
	return cfg, ok
}

// All returns all configured publishers.
func (r *ConfigRegistry) All() []PublisherConfig {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.publishers)
}

// Enabled returns publishers that are enabled.
func (r *ConfigRegistry) Enabled() []PublisherConfig {
	return slices.DeleteFunc(r.All(), func(cfg PublisherConfig) bool { return !cfg.EnabledValue() })
}

// EnabledValue returns enabled flag defaulting to true.
func (cfg PublisherConfig) EnabledValue() bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}

// Accepts reports whether events from sourceID with the given degraded flag
// go to this publisher. An empty source list accepts every source.
func (cfg PublisherConfig) Accepts(sourceID string, degraded bool) bool {
	if degraded && !cfg.IncludeDegraded {
		return false
	}
	return len(cfg.Sources) == 0 || slices.Contains(cfg.Sources, strings.ToLower(sourceID))
}
