package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tearncolour/SharkRadio/modem"
	"github.com/tearncolour/SharkRadio/protocol"
)

// Global debug flag
var DebugMode bool

// App wires the radios, the streaming pipeline and the delivery
// surfaces together.
type App struct {
	config   *Config
	metrics  *PrometheusMetrics
	analyzer *SpectrumAnalyzer
	hub      *WSHub
	mqtt     *MQTTPublisher
	radios   *RadioManager
	streams  *StreamRegistry

	spectrumCounter atomic.Uint64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	replayFile := flag.String("replay", "", "Replay an IQ capture file instead of the configured device")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	config, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	DebugMode = *debug || config.Logging.Level == "debug"

	app := &App{
		config:  config,
		metrics: NewPrometheusMetrics(),
		hub:     NewWSHub(config.Server.EnableCORS),
		radios:  NewRadioManager(),
	}
	if config.Spectrum.Enabled {
		app.analyzer = NewSpectrumAnalyzer(config.Spectrum)
	}
	app.streams = NewStreamRegistry(config.Streaming, app.metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.MQTT.Enabled {
		app.mqtt, err = NewMQTTPublisher(&config.MQTT)
		if err != nil {
			log.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
		app.mqtt.StartPublisher(ctx)
	}

	if err := app.openRadio(*replayFile); err != nil {
		log.Fatalf("Failed to open radio: %v", err)
	}

	stopChan := make(chan struct{})
	app.metrics.UpdateResourceMetrics()
	app.metrics.StartResourceMetricsUpdater(stopChan)

	if config.Prometheus.Enabled {
		http.Handle("/metrics", MetricsHandler(&config.Prometheus))
	}
	http.HandleFunc("/ws", app.hub.HandleWS)
	http.HandleFunc("/health", app.handleHealth)
	http.HandleFunc("/api/signals", app.handleSignals)
	http.HandleFunc("/api/radios", app.handleRadios)
	http.HandleFunc("/api/radios/active", app.handleRadioActive)
	http.HandleFunc("/api/tx/start", app.handleTXStart)
	http.HandleFunc("/api/tx/stop", app.handleTXStop)
	http.HandleFunc("/api/stream/start", app.handleStreamStart)
	http.HandleFunc("/api/stream/stop", app.handleStreamStop)

	server := &http.Server{Addr: config.Server.Listen}
	go func() {
		log.Printf("[Main] Listening on %s", config.Server.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// A capture replay starts demodulating right away.
	if *replayFile != "" {
		if err := app.startStream("replay", "replay", config.SDR.Side+"_broadcast"); err != nil {
			log.Fatalf("Failed to start replay stream: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("[Main] Shutting down...")

	close(stopChan)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] HTTP shutdown error: %v", err)
	}

	app.streams.StopAll()
	app.radios.CloseAll()
	app.hub.Close()
	if app.mqtt != nil {
		app.mqtt.Disconnect()
	}
	log.Println("[Main] Shutdown complete")
}

// openRadio attaches the configured device. Hardware drivers plug in
// through the Radio interface; the built-in devices are the loopback
// radio and capture replay.
func (app *App) openRadio(replayFile string) error {
	if replayFile != "" {
		replay, err := OpenReplayRadio(replayFile)
		if err != nil {
			return err
		}
		log.Printf("[Main] Replaying %s at %d Hz", replayFile, replay.SampleRate())
		// The capture's recorded rate overrides the configured one.
		app.config.SDR.SampleRate = replay.SampleRate()
		app.radios.Connect("replay", "Capture replay", replay)
		return nil
	}

	device := app.config.SDR.Device
	switch {
	case device == "loopback":
		app.radios.Connect("loopback", "Loopback radio", NewLoopbackRadio(app.config.Streaming.BlockSize))
		return nil
	case strings.HasPrefix(device, "replay:"):
		replay, err := OpenReplayRadio(strings.TrimPrefix(device, "replay:"))
		if err != nil {
			return err
		}
		app.config.SDR.SampleRate = replay.SampleRate()
		app.radios.Connect("replay", "Capture replay", replay)
		return nil
	default:
		return fmt.Errorf("no driver for device %q (hardware drivers attach via the Radio interface)", device)
	}
}

// sink fans decoded frames out to every delivery surface.
func (app *App) sink() FrameSink {
	return func(channelID string, frame *protocol.Frame) {
		if DebugMode {
			log.Printf("[Frame] %s seq=%d type=%s len=%d", channelID, frame.Seq, frame.Type, frame.DataLength)
		}
		app.hub.BroadcastFrame(channelID, frame)
		if app.mqtt != nil {
			app.mqtt.PublishFrame(channelID, frame)
		}
	}
}

// startStream opens a demodulation channel for a radio and begins
// feeding it receive blocks.
func (app *App) startStream(radioID, channelID, signalType string) error {
	demodCfg := modem.ConfigForSignal(signalType, app.config.SDR.SampleRate)

	ch, err := app.streams.Start(channelID, demodCfg, app.sink())
	if err != nil {
		return err
	}

	spec := GetSignalSpec(signalType)
	if radio, ok := app.radios.Get(radioID); ok {
		if err := radio.Configure(spec.Frequency, float64(app.config.SDR.RXGain), spec.Bandwidth); err != nil {
			app.streams.Stop(channelID)
			return fmt.Errorf("configuring %s for receive: %w", radioID, err)
		}
	}

	var recorder *IQRecorder
	if app.config.Recording.Enabled {
		recorder, err = NewIQRecorder(app.config.Recording.DataDir, channelID, app.config.SDR.SampleRate)
		if err != nil {
			log.Printf("[Main] Recording disabled for %s: %v", channelID, err)
			recorder = nil
		}
	}

	return app.radios.StartStreaming(radioID, func(block []complex64) {
		if recorder != nil {
			if err := recorder.WriteBlock(block); err != nil {
				log.Printf("[Main] Capture write failed: %v", err)
			}
		}
		// Spectrum on every 8th block keeps the FFT cost off the
		// receive path.
		if app.analyzer != nil && app.spectrumCounter.Add(1)%8 == 0 {
			app.hub.BroadcastSpectrum(app.analyzer.Preview(block, app.config.SDR.SampleRate, spec.Frequency))
		}
		ch.Submit(block)
	})
}

func (app *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"radios": app.radios.List(),
	})
}

func (app *App) handleSignals(w http.ResponseWriter, r *http.Request) {
	specs := make(map[string]SignalSpec)
	for _, name := range SignalTypes(app.config.SDR.Side) {
		specs[name] = GetSignalSpec(name)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(specs)
}

func (app *App) handleRadios(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"radios": app.radios.List(),
		"active": app.radios.ActiveID(),
	})
}

// handleRadioActive selects the default radio for requests that omit
// a radio_id.
func (app *App) handleRadioActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		RadioID string `json:"radio_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := app.radios.SetActive(req.RadioID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// radioID substitutes the active radio for requests that omit one.
func (app *App) radioID(requested string) string {
	if requested != "" {
		return requested
	}
	return app.radios.ActiveID()
}

type txStartRequest struct {
	RadioID    string `json:"radio_id"`
	SignalType string `json:"signal_type"`
	Payload    string `json:"payload"` // Hex-encoded; empty sends unframed filler
}

func (app *App) handleTXStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req txStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var payload []byte
	if req.Payload != "" {
		var err error
		payload, err = hex.DecodeString(req.Payload)
		if err != nil {
			http.Error(w, "Payload must be hex", http.StatusBadRequest)
			return
		}
	}

	req.RadioID = app.radioID(req.RadioID)
	preview, samples, err := app.radios.StartSignal(req.RadioID, req.SignalType, payload,
		app.config.SDR.SampleRate, float64(app.config.SDR.TXGain), app.analyzer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	app.metrics.TXBurst(req.SignalType, samples)
	app.hub.BroadcastSpectrum(preview)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"started": true,
		"preview": preview,
	})
}

func (app *App) handleTXStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		RadioID string `json:"radio_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := app.radios.StopSignal(app.radioID(req.RadioID)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type streamStartRequest struct {
	RadioID    string `json:"radio_id"`
	Channel    string `json:"channel"`
	SignalType string `json:"signal_type"`
}

func (app *App) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req streamStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.RadioID = app.radioID(req.RadioID)
	if req.Channel == "" {
		req.Channel = req.RadioID
	}
	if req.SignalType == "" {
		req.SignalType = app.config.SDR.Side + "_broadcast"
	}

	if err := app.startStream(req.RadioID, req.Channel, req.SignalType); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		RadioID string `json:"radio_id"`
		Channel string `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.RadioID = app.radioID(req.RadioID)
	if req.Channel == "" {
		req.Channel = req.RadioID
	}

	if err := app.radios.StopStreaming(req.RadioID); err != nil {
		log.Printf("[Main] Stop streaming %s: %v", req.RadioID, err)
	}
	app.streams.Stop(req.Channel)
	w.WriteHeader(http.StatusNoContent)
}
