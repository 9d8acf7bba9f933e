package objectstore

import "github.com/dcsp-io/dcsp/internal/config"

// Config is the env-driven configuration for the S3-backed Store.
type Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	EndpointURL     string // non-empty to target a MinIO-compatible endpoint
}

// LoadConfig reads S3 connection settings from the environment.
func LoadConfig() Config {
	return Config{
		Region:          config.GetEnvStr("DCSP_OBJECTSTORE_REGION", "us-east-1"),
		Bucket:          config.GetEnvStr("DCSP_OBJECTSTORE_BUCKET", "dcsp-snapshots"),
		AccessKeyID:     config.GetEnvStr("DCSP_OBJECTSTORE_ACCESS_KEY_ID", ""),
		SecretAccessKey: config.GetEnvStr("DCSP_OBJECTSTORE_SECRET_ACCESS_KEY", ""),
		EndpointURL:     config.GetEnvStr("DCSP_OBJECTSTORE_ENDPOINT_URL", ""),
	}
}
