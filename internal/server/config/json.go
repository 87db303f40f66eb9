package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/catalogadmin/internal/flagx"
	"github.com/dmitrijs2005/catalogadmin/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// either "15m" strings or integer nanoseconds. Pointer booleans distinguish
// "false" from "absent".
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	LogLevel                     string         `json:"log_level"`
	CORSAllowedOrigins           string         `json:"cors_allowed_origins"`

	DocStore           string `json:"doc_store"`
	DynamoTablePrefix  string `json:"dynamo_table_prefix"`
	DynamoBaseEndpoint string `json:"dynamo_base_endpoint"`

	BlobStore         string         `json:"blob_store"`
	LocalBlobDir      string         `json:"local_blob_dir"`
	S3RootUser        string         `json:"s3_root_user"`
	S3RootPassword    string         `json:"s3_root_password"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	S3PublicBaseURL   string         `json:"s3_public_base_url"`
	PresignExpiry     timex.Duration `json:"presign_expiry"`
	DownloadURLExpiry timex.Duration `json:"download_url_expiry"`

	UniqueBlobNames   *bool `json:"unique_blob_names"`
	ConcurrentUploads *bool `json:"concurrent_uploads"`
	CleanupOrphans    *bool `json:"cleanup_orphans"`
	MaxUploadSize     int64 `json:"max_upload_size"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// $CATALOG_CONFIG). Absent keys keep their current value. An unreadable
// or malformed file panics: the server must not start half-configured.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.CORSAllowedOrigins, c.CORSAllowedOrigins)

	setString(&config.DocStore, c.DocStore)
	setString(&config.DynamoTablePrefix, c.DynamoTablePrefix)
	setString(&config.DynamoBaseEndpoint, c.DynamoBaseEndpoint)

	setString(&config.BlobStore, c.BlobStore)
	setString(&config.LocalBlobDir, c.LocalBlobDir)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicBaseURL, c.S3PublicBaseURL)
	setDuration(&config.PresignExpiry, c.PresignExpiry)
	setDuration(&config.DownloadURLExpiry, c.DownloadURLExpiry)

	setBool(&config.UniqueBlobNames, c.UniqueBlobNames)
	setBool(&config.ConcurrentUploads, c.ConcurrentUploads)
	setBool(&config.CleanupOrphans, c.CleanupOrphans)
	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
