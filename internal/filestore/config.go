package filestore

// Provider identifies the object storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds the settings needed to reach an object store.
type Config struct {
	Provider Provider `yaml:"provider"`

	// Endpoint is host:port, e.g. "localhost:9000".
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`

	// Region is only needed by region-aware backends; leave empty for MinIO.
	Region string `yaml:"region"`

	// Bucket receives every snapshot.
	Bucket string `yaml:"bucket"`
}

// DefaultConfig returns a local-dev MinIO config.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    "schemabridge-snapshots",
	}
}
