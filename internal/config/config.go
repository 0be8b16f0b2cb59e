// Package config provides configuration helpers for go-ringwave commands.
package config

import (
	"os"
	"regexp"
)

// Defaults for the ring link and host surfaces.
const (
	// DefaultNamePattern matches the advertised name of RF03-family rings.
	DefaultNamePattern = `^R0\d_[0-9A-Z]{4}$`
	DefaultLogLevel    = "info"
	DefaultDashPort    = "8090"
	DefaultMQTTTopic   = "ringwave"
)

// NamePattern returns the compiled advertised-name matcher, honouring the
// RING_NAME_PATTERN env var. An invalid override falls back to the default.
func NamePattern() *regexp.Regexp {
	if pat := os.Getenv("RING_NAME_PATTERN"); pat != "" {
		if re, err := regexp.Compile(pat); err == nil {
			return re
		}
	}
	return regexp.MustCompile(DefaultNamePattern)
}

// LogLevel returns the log level from LOG_LEVEL or the default.
func LogLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return DefaultLogLevel
}

// DashboardPort returns the dashboard port from DASHBOARD_PORT or the default.
func DashboardPort() string {
	if port := os.Getenv("DASHBOARD_PORT"); port != "" {
		return port
	}
	return DefaultDashPort
}

// MQTTBroker returns the broker URL from MQTT_BROKER. Empty means MQTT
// publishing is disabled.
func MQTTBroker() string {
	return os.Getenv("MQTT_BROKER")
}

// MQTTTopic returns the topic prefix from MQTT_TOPIC or the default.
func MQTTTopic() string {
	if topic := os.Getenv("MQTT_TOPIC"); topic != "" {
		return topic
	}
	return DefaultMQTTTopic
}
