package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable the server reads.
const EnvPrefix = "CATALOG_"

// loadDotEnv reads a .env file from the working directory into the process
// environment without overriding variables that are already set.
var loadDotEnv = func() error { return godotenv.Load() }

// parseEnv overlays CATALOG_* environment variables. A missing .env file is
// not an error. Malformed numbers, booleans or durations panic, like a bad
// flag would.
func parseEnv(config *Config) {
	_ = loadDotEnv()

	envString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	envString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.SecretKey, "SECRET_KEY")
	envDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_TTL")
	envDuration(&config.RefreshTokenValidityDuration, "REFRESH_TOKEN_TTL")
	envString(&config.LogLevel, "LOG_LEVEL")
	envString(&config.CORSAllowedOrigins, "CORS_ORIGINS")

	envString(&config.DocStore, "DOC_STORE")
	envString(&config.DynamoTablePrefix, "DYNAMO_TABLE_PREFIX")
	envString(&config.DynamoBaseEndpoint, "DYNAMO_BASE_ENDPOINT")

	envString(&config.BlobStore, "BLOB_STORE")
	envString(&config.LocalBlobDir, "LOCAL_BLOB_DIR")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	envString(&config.S3PublicBaseURL, "S3_PUBLIC_BASE_URL")
	envDuration(&config.PresignExpiry, "PRESIGN_EXPIRY")
	envDuration(&config.DownloadURLExpiry, "DOWNLOAD_URL_EXPIRY")

	envBool(&config.UniqueBlobNames, "UNIQUE_BLOB_NAMES")
	envBool(&config.ConcurrentUploads, "CONCURRENT_UPLOADS")
	envBool(&config.CleanupOrphans, "CLEANUP_ORPHANS")
	envInt64(&config.MaxUploadSize, "MAX_UPLOAD_SIZE")
}

func envString(dst *string, name string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
		*dst = v
	}
}

func envDuration(dst *time.Duration, name string) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

func envBool(dst *bool, name string) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(err)
	}
	*dst = b
}

func envInt64(dst *int64, name string) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		panic(err)
	}
	*dst = n
}
