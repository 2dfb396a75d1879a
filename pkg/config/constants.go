package config

const (
	EnvPrefix = "LEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "LEDGER_APP_ENV"
	EnvPort     = "LEDGER_APP_PORT"
	EnvLogLevel = "LEDGER_LOG_LEVEL"

	EnvDBDSN  = "LEDGER_DB_DSN"
	EnvDBHost = "LEDGER_DB_HOST"
	EnvDBUser = "LEDGER_DB_USER"
	EnvDBName = "LEDGER_DB_NAME"

	EnvRedisURL = "LEDGER_REDIS_URL"

	EnvJWTSecret  = "LEDGER_JWT_SECRET"
	EnvJWTIssuer  = "LEDGER_JWT_ISSUER"
	EnvJWTExpMins = "LEDGER_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "LEDGER_GCP_PROJECT_ID"

	EnvPubSubInvoicesTopic = "LEDGER_PUBSUB_INVOICES_TOPIC"
	EnvPubSubPaymentsTopic = "LEDGER_PUBSUB_PAYMENTS_TOPIC"
	EnvPubSubAlertsTopic   = "LEDGER_PUBSUB_ALERTS_TOPIC"

	EnvInvoicePrefix      = "LEDGER_INVOICE_PREFIX"
	EnvInvoiceStartNumber = "LEDGER_INVOICE_START_NUMBER"
	EnvNumberMaxRetries   = "LEDGER_NUMBER_MAX_RETRIES"
	EnvEditAllowance      = "LEDGER_EDIT_ALLOWANCE_WINDOW"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
