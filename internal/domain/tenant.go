package domain

import "time"

// AuthType selects how HTTPChannelConfig credentials are attached to
// outbound requests.
type AuthType string

const (
	AuthBearer AuthType = "Bearer"
	AuthAPIKey AuthType = "ApiKey"
	AuthBasic  AuthType = "Basic"
	AuthHMAC   AuthType = "HMAC"
)

// ProviderType selects the payload shape built by the template engine.
type ProviderType string

const (
	ProviderGeneric     ProviderType = "Generic"
	ProviderTwilio      ProviderType = "Twilio"
	ProviderVonage      ProviderType = "Vonage"
	ProviderMessageBird ProviderType = "MessageBird"
	ProviderTextMagic   ProviderType = "TextMagic"
	ProviderCustom      ProviderType = "Custom"
)

// CircuitBreakerConfig configures the resilience pipeline's breaker stage.
type CircuitBreakerConfig struct {
	FailureThreshold int `json:"failureThreshold"`
	RecoveryTimeoutS int `json:"recoveryTimeoutS"`
}

// HTTPChannelConfig is a tenant's configuration for the HTTP SMS channel.
type HTTPChannelConfig struct {
	Endpoint              string               `json:"endpoint"`
	APIKey                string               `json:"apiKey"`
	APISecret             string               `json:"apiSecret"`
	CustomHeaders         map[string]string    `json:"customHeaders"`
	TimeoutMs             int                  `json:"timeoutMs"`
	MaxRetries            int                  `json:"maxRetries"`
	MaxRequestsPerSecond  int                  `json:"maxRequestsPerSecond"`
	CircuitBreaker        CircuitBreakerConfig `json:"circuitBreaker"`
	Provider              ProviderType         `json:"provider"`
	SenderID              string               `json:"senderId"`
	CustomPayloadTemplate string               `json:"customPayloadTemplate"`
	AuthType              AuthType             `json:"authType"`
}

// BindType selects the SMPP session type.
type BindType string

const (
	BindTransceiver BindType = "Transceiver"
	BindTransmitter BindType = "Transmitter"
	BindReceiver    BindType = "Receiver"
)

// SMPPPoolConfig configures the per-tenant connection pool.
type SMPPPoolConfig struct {
	MinConnections   int `json:"min"`
	MaxConnections   int `json:"max"`
	IdleTimeoutS     int `json:"idle"`
	ConnectTimeoutMs int `json:"connectTimeout"`
	RecoveryDelayS   int `json:"recoveryDelayS"`
}

// SMPPRateConfig holds the SMPP send-rate settings. MaxMessagesPerSecond is
// the capacity of the tenant's internal/ratelimit bucket checked before each
// submit; Burst and WindowMs are not read, and no send-speed limit is set on
// the gosmpp session itself.
type SMPPRateConfig struct {
	MaxMessagesPerSecond int `json:"maxPerSecond"`
	Burst                int `json:"burst"`
	WindowMs             int `json:"windowMs"`
}

// SMPPDeliveryReceiptConfig configures DLR handling.
type SMPPDeliveryReceiptConfig struct {
	Enabled       bool `json:"enabled"`
	DLRMask       int  `json:"dlrMask"`
	RetentionDays int  `json:"retentionDays"`
}

// SMPPThrottlingConfig configures ESME_RTHROTTLED backoff.
type SMPPThrottlingConfig struct {
	InitialBackoffMs int     `json:"initialBackoffMs"`
	MaxBackoffMs     int     `json:"maxBackoffMs"`
	Multiplier       float64 `json:"multiplier"`
}

// SMPPFailedMessageConfig configures message-level retry policy.
type SMPPFailedMessageConfig struct {
	MaxRetries          int   `json:"maxRetries"`
	RetryDelayMinutes   []int `json:"retryDelayMinutes"`
	DeadLetterAfterDays int   `json:"deadLetterAfterDays"`
}

// SMPPChannelConfig is a tenant's configuration for the SMPP channel.
type SMPPChannelConfig struct {
	Host                  string                    `json:"host"`
	Port                  int                       `json:"port"`
	SystemID              string                    `json:"systemId"`
	Password              string                    `json:"password"`
	SourceAddress         string                    `json:"sourceAddress"`
	BindType              BindType                  `json:"bindType"`
	UseTLS                bool                      `json:"useTls"`
	EnquireLinkIntervalMs int                       `json:"enquireLinkIntervalMs"`
	InactivityTimeoutMs   int                       `json:"inactivityTimeoutMs"`
	Pool                  SMPPPoolConfig            `json:"pool"`
	Rate                  SMPPRateConfig            `json:"rate"`
	CircuitBreaker        CircuitBreakerConfig      `json:"circuitBreaker"`
	DeliveryReceipt       SMPPDeliveryReceiptConfig `json:"deliveryReceipt"`
	Throttling            SMPPThrottlingConfig      `json:"throttling"`
	FailedMessage         SMPPFailedMessageConfig   `json:"failedMessage"`
}

// TenantConfig is a single tenant's process-wide, read-only configuration.
type TenantConfig struct {
	SubscriptionKey string             `json:"subscriptionKey"`
	Name            string             `json:"name"`
	HTTP            *HTTPChannelConfig `json:"http,omitempty"`
	SMPP            *SMPPChannelConfig `json:"smpp,omitempty"`
}

// HasChannel reports whether the tenant has the given channel configured.
func (t TenantConfig) HasChannel(ch ChannelType) bool {
	switch ch {
	case ChannelHTTP:
		return t.HTTP != nil
	case ChannelSMPP:
		return t.SMPP != nil
	default:
		return false
	}
}

// EnquireLinkInterval returns the configured enquire-link interval as a
// time.Duration, defaulting to 30s.
func (c SMPPChannelConfig) EnquireLinkInterval() time.Duration {
	if c.EnquireLinkIntervalMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.EnquireLinkIntervalMs) * time.Millisecond
}

// ConnectTimeout returns the configured pool connect timeout, defaulting to
// 5s.
func (c SMPPPoolConfig) ConnectTimeout() time.Duration {
	if c.ConnectTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// Timeout returns the configured HTTP attempt timeout, defaulting to 10s.
func (c HTTPChannelConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
