// Package payload builds provider-shaped JSON request bodies for the HTTP
// channel. The Custom provider branch renders the standard library's
// text/template — see DESIGN.md for why no third-party templating
// dependency is used here.
package payload

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"smshub/internal/domain"
)

const defaultSenderID = "MessageHub"

// Input is the normalized set of fields available to every provider branch.
type Input struct {
	MessageID string
	TenantKey string
	Recipient string
	Content   string
}

// Build renders the JSON payload for cfg.Provider, falling back to Generic
// if a Custom template is missing or fails to render.
func Build(in Input, cfg domain.HTTPChannelConfig, log *slog.Logger) (string, error) {
	sender := cfg.SenderID
	if sender == "" {
		sender = defaultSenderID
	}

	switch cfg.Provider {
	case domain.ProviderTwilio:
		return marshal(map[string]any{
			"To":   in.Recipient,
			"From": sender,
			"Body": in.Content,
		})
	case domain.ProviderVonage:
		return marshal(map[string]any{
			"api_key":    cfg.APIKey,
			"api_secret": cfg.APISecret,
			"to":         in.Recipient,
			"from":       sender,
			"text":       in.Content,
			"type":       "text",
		})
	case domain.ProviderMessageBird:
		return marshal(map[string]any{
			"recipients": []string{in.Recipient},
			"originator": sender,
			"body":       in.Content,
			"params":     map[string]any{"datacoding": "auto"},
		})
	case domain.ProviderTextMagic:
		return marshal(map[string]any{
			"text":   in.Content,
			"phones": in.Recipient,
			"from":   sender,
		})
	case domain.ProviderCustom:
		out, err := buildCustom(in, cfg, sender)
		if err != nil {
			if log != nil {
				log.Warn("custom payload template failed, falling back to generic",
					"tenant", in.TenantKey, "error", err)
			}
			return buildGeneric(in, sender)
		}
		return out, nil
	default:
		return buildGeneric(in, sender)
	}
}

func buildGeneric(in Input, sender string) (string, error) {
	return marshal(map[string]any{
		"to":        in.Recipient,
		"text":      in.Content,
		"from":      sender,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// customVars are the variables exposed to a Custom provider's template.
type customVars struct {
	Recipient string
	Message   string
	SenderID  string
	APIKey    string
	Timestamp string
	MessageID string
	TenantID  string
}

func buildCustom(in Input, cfg domain.HTTPChannelConfig, sender string) (string, error) {
	if strings.TrimSpace(cfg.CustomPayloadTemplate) == "" {
		return "", errEmptyTemplate
	}
	tmpl, err := template.New("custom-payload").Parse(cfg.CustomPayloadTemplate)
	if err != nil {
		return "", err
	}
	vars := customVars{
		Recipient: in.Recipient,
		Message:   in.Content,
		SenderID:  sender,
		APIKey:    cfg.APIKey,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: in.MessageID,
		TenantID:  in.TenantKey,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func marshal(v map[string]any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var errEmptyTemplate = templateErr("customPayloadTemplate is empty")

type templateErr string

func (e templateErr) Error() string { return string(e) }
