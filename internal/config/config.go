package config

import (
	"encoding/base64"
	"fmt"
	"strings"
)

type Config struct {
	ServerAddr      string
	DataDir         string
	SigningKey      []byte
	AdminEmail      string
	RequireApproval bool
	BaseURL         string
	AllowedOrigins  []string
	SMTPAddr        string
	SMTPFrom        string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, dataDir, base64Secret, adminEmail, baseURL string, requireApproval bool, allowedOrigins []string, smtpAddr, smtpFrom string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if adminEmail == "" {
		return nil, fmt.Errorf("admin email cannot be empty")
	}
	if smtpAddr != "" && smtpFrom == "" {
		return nil, fmt.Errorf("smtp from address cannot be empty when smtp is configured")
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:      serverAddr,
		DataDir:         dataDir,
		SigningKey:      signingKey,
		AdminEmail:      adminEmail,
		RequireApproval: requireApproval,
		BaseURL:         strings.TrimRight(baseURL, "/"),
		AllowedOrigins:  allowedOrigins,
		SMTPAddr:        smtpAddr,
		SMTPFrom:        smtpFrom,
	}, nil
}
