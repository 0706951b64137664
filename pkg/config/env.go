package config

// Environment variable names referenced in validation messages and tests.
const (
	EnvAppEnv                = "NOTIFSYNC_APP_ENV"
	EnvPort                  = "NOTIFSYNC_APP_PORT"
	EnvLogLevel              = "NOTIFSYNC_LOG_LEVEL"
	EnvRemoteBaseURL         = "NOTIFSYNC_REMOTE_BASE_URL"
	EnvRemoteUserID          = "NOTIFSYNC_REMOTE_USER_ID"
	EnvRemoteOffline         = "NOTIFSYNC_REMOTE_OFFLINE"
	EnvPushTransport         = "NOTIFSYNC_PUSH_TRANSPORT"
	EnvSupervisorBaseDelay   = "NOTIFSYNC_SUPERVISOR_BASE_DELAY"
	EnvSupervisorMaxDelay    = "NOTIFSYNC_SUPERVISOR_MAX_DELAY"
	EnvSupervisorMaxRetries  = "NOTIFSYNC_SUPERVISOR_MAX_RETRIES"
	EnvSupervisorStableAfter = "NOTIFSYNC_SUPERVISOR_STABLE_AFTER"
	EnvFallbackInterval      = "NOTIFSYNC_FALLBACK_INTERVAL"
	EnvConfirmTimeout        = "NOTIFSYNC_CONFIRM_TIMEOUT"
	EnvRedisURL              = "NOTIFSYNC_REDIS_URL"
	EnvRedisAddr             = "NOTIFSYNC_REDIS_ADDR"
	EnvGCPProjectID          = "NOTIFSYNC_GCP_PROJECT_ID"
	EnvPubSubNotificationSub = "NOTIFSYNC_PUBSUB_NOTIFICATION_SUBSCRIPTION"
)
