package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tearncolour/SharkRadio/protocol"
)

// MQTTPublisher publishes decoded frames and periodic metric
// snapshots to an MQTT broker
type MQTTPublisher struct {
	client mqtt.Client
	config *MQTTConfig
}

// FramePayload is the JSON shape of a decoded frame on the wire
type FramePayload struct {
	Timestamp  int64  `json:"timestamp"`
	Channel    string `json:"channel"`
	Type       string `json:"type"`
	CommandID  uint16 `json:"command_id"`
	Seq        uint8  `json:"seq"`
	DataLength uint16 `json:"data_length"`
	Payload    string `json:"payload"` // Hex-encoded frame payload
	Raw        string `json:"raw"`     // Hex-encoded full frame
}

// MetricPayload represents a metric snapshot message
type MetricPayload struct {
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// generateClientID creates a random client ID for MQTT connection
func generateClientID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "sharkradio_" + hex.EncodeToString(bytes)
}

// loadTLSConfig loads TLS configuration from files
func loadTLSConfig(tlsConfig MQTTTLSConfig) (*tls.Config, error) {
	if !tlsConfig.Enabled {
		return nil, nil
	}

	config := &tls.Config{}

	if tlsConfig.CACert != "" {
		caCert, err := os.ReadFile(tlsConfig.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	if tlsConfig.ClientCert != "" && tlsConfig.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.ClientCert, tlsConfig.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

// NewMQTTPublisher creates a new MQTT publisher and connects to the
// broker
func NewMQTTPublisher(config *MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(generateClientID())

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if config.TLS.Enabled {
		tlsConfig, err := loadTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("MQTT: Connected to broker")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Println("MQTT: Attempting to reconnect...")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Printf("MQTT: Successfully connected to broker: %s", config.Broker)

	return &MQTTPublisher{client: client, config: config}, nil
}

// PublishFrame publishes one decoded frame to
// <prefix>/<channel>/frames
func (mp *MQTTPublisher) PublishFrame(channelID string, frame *protocol.Frame) {
	payload := FramePayload{
		Timestamp:  frame.Time.Unix(),
		Channel:    channelID,
		Type:       string(frame.Type),
		CommandID:  uint16(frame.CommandID),
		Seq:        frame.Seq,
		DataLength: frame.DataLength,
		Payload:    hex.EncodeToString(frame.Payload),
		Raw:        frame.Hex(),
	}

	topic := fmt.Sprintf("%s/%s/frames", mp.config.TopicPrefix, channelID)
	mp.publish(topic, payload)
}

// StartPublisher starts the background metric snapshot loop
func (mp *MQTTPublisher) StartPublisher(ctx context.Context) {
	go mp.startMetricsPublisher(ctx)
}

// startMetricsPublisher publishes metric snapshots at the configured
// interval
func (mp *MQTTPublisher) startMetricsPublisher(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(mp.config.PublishInterval) * time.Second)
	defer ticker.Stop()

	log.Printf("MQTT: Metrics publisher started with %d second interval", mp.config.PublishInterval)

	// Publish immediately on start
	mp.publishMetricSnapshot()

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT: Metrics publisher stopped")
			return
		case <-ticker.C:
			mp.publishMetricSnapshot()
		}
	}
}

// publishMetricSnapshot gathers the Prometheus registry and publishes
// all pipeline metrics as one JSON snapshot
func (mp *MQTTPublisher) publishMetricSnapshot() {
	timestamp := time.Now().Unix()

	metricFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		log.Printf("MQTT ERROR: Failed to gather Prometheus metrics: %v", err)
		return
	}

	metrics := make(map[string]float64)
	for _, mf := range metricFamilies {
		metricName := mf.GetName()
		if len(metricName) < 10 || metricName[:10] != "sharkradio" {
			continue
		}

		for _, m := range mf.GetMetric() {
			value, ok := extractMetricValue(m)
			if !ok {
				continue
			}

			// Fold labels into the key so every series is addressable
			key := metricName
			for _, label := range m.GetLabel() {
				key += "_" + label.GetName() + "_" + label.GetValue()
			}
			metrics[key] = value
		}
	}

	if len(metrics) == 0 {
		return
	}

	topic := fmt.Sprintf("%s/metrics", mp.config.TopicPrefix)
	mp.publish(topic, MetricPayload{Timestamp: timestamp, Metrics: metrics})
}

// extractMetricValue extracts the numeric value from a Prometheus metric
func extractMetricValue(m *dto.Metric) (float64, bool) {
	if m.GetGauge() != nil {
		return m.GetGauge().GetValue(), true
	}
	if m.GetCounter() != nil {
		return m.GetCounter().GetValue(), true
	}
	if m.GetHistogram() != nil {
		return m.GetHistogram().GetSampleSum(), true
	}
	if m.GetSummary() != nil {
		return m.GetSummary().GetSampleSum(), true
	}
	return 0, false
}

// publish sends a JSON payload to an MQTT topic
func (mp *MQTTPublisher) publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("MQTT ERROR: Failed to marshal payload for topic %s: %v", topic, err)
		return
	}

	token := mp.client.Publish(topic, mp.config.QoS, mp.config.Retain, data)
	if token.Wait() && token.Error() != nil {
		log.Printf("MQTT ERROR: Failed to publish to topic %s: %v", topic, token.Error())
	}
}

// Disconnect closes the MQTT connection
func (mp *MQTTPublisher) Disconnect() {
	log.Println("MQTT: Disconnecting from broker")
	mp.client.Disconnect(250)
}
