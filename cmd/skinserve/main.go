// Command skinserve runs the skin sensor driver and serves live state
// over WebSocket.
//
// It opens the sensor device (auto-detecting the serial port when none
// is configured), starts the reader, and broadcasts patch state to
// connected clients.  With -keys, single-key commands control the
// calibration lifecycle interactively:
//
//	c    begin/end a baseline calibration window
//	t    tare (zero all baselines)
//	q    quit
//
// The -device, -layout, -profile, -alpha, -pressure-alpha, -log and
// -debuglog flags, when set, override the corresponding JSON config
// fields.  The -baud, -patches, -cells and -addr flags only fill fields
// the config leaves empty or zero.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/sirupsen/logrus"

	"github.com/t173/skinvis/internal/stream"
	"github.com/t173/skinvis/serialport"
	"github.com/t173/skinvis/skin"
)

func main() {
	var (
		configPath = flag.String("config", "", "JSON parameter file")
		device     = flag.String("device", "", "sensor device path (auto-detect when empty)")
		baud       = flag.Int("baud", skin.DefaultBaud, "serial line rate")
		layoutPath = flag.String("layout", "", "layout file")
		profile    = flag.String("profile", "", "calibration profile CSV")
		patches    = flag.Int("patches", 8, "number of patches when no layout file is given")
		cells      = flag.Int("cells", 16, "cells per patch when no layout file is given")
		alpha      = flag.Float64("alpha", 0, "cell smoothing alpha (0,1]")
		palpha     = flag.Float64("pressure-alpha", 0, "pressure smoothing alpha (0,1]")
		logPath    = flag.String("log", "", "sample log CSV")
		debugPath  = flag.String("debuglog", "", "debug event log CSV")
		listen     = flag.String("addr", "127.0.0.1:8084", "http listen address")
		keys       = flag.Bool("keys", false, "enable single-key calibration commands")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := &Config{}
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			logrus.Fatal(err)
		}
	}
	mergeFlags(cfg, *device, *baud, *layoutPath, *profile, *patches, *cells,
		*alpha, *palpha, *logPath, *debugPath, *listen)

	if cfg.Serial.Port == "" {
		logrus.Info("no device configured; probing serial ports")
		port := serialport.Detect("", cfg.Serial.Baudrate)
		if port == "" {
			logrus.Fatal("could not auto-detect sensor device")
		}
		logrus.WithField("port", port).Info("detected sensor device")
		cfg.Serial.Port = port
	}

	sensor, err := buildSensor(cfg)
	if err != nil {
		logrus.Fatal(err)
	}

	if err := sensor.Start(); err != nil {
		logrus.Fatal(err)
	}
	logrus.WithField("device", sensor.Device()).Info("streaming")

	hub := stream.NewHub()
	pub := stream.NewPublisher(hub, sensor, 50*time.Millisecond)
	pub.Start()

	http.Handle("/ws", pub.Handler())
	go func() {
		logrus.WithField("addr", cfg.Listen).Info("serving websocket state")
		if err := http.ListenAndServe(cfg.Listen, nil); err != nil {
			logrus.Fatal(err)
		}
	}()

	// Route termination through a channel so the facade holds no global
	// state.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	keyEvents := make(chan rune)
	if *keys {
		go keyLoop(keyEvents)
	}

loop:
	for {
		select {
		case <-quit:
			break loop
		case k := <-keyEvents:
			switch k {
			case 'c', 'C':
				if sensor.Calibrating() {
					sensor.CalibrateEnd()
					logrus.Info("calibration window closed")
				} else {
					sensor.CalibrateBegin()
					logrus.Info("calibration window open")
				}
			case 't', 'T':
				sensor.Tare()
				logrus.Info("tared")
			case 'q', 'Q', 0x1B:
				break loop
			}
		}
	}

	pub.Stop()
	if err := sensor.Close(); err != nil {
		logrus.WithError(err).Error("shutdown")
		os.Exit(1)
	}
}

// mergeFlags overlays non-empty flag values onto cfg and fills defaults.
func mergeFlags(cfg *Config, device string, baud int, layoutPath, profile string,
	patches, cells int, alpha, palpha float64, logPath, debugPath, listen string) {
	if cfg.Serial == nil {
		cfg.Serial = &SerialConfig{}
	}
	if device != "" {
		cfg.Serial.Port = device
	}
	if cfg.Serial.Baudrate == 0 {
		cfg.Serial.Baudrate = baud
	}
	if layoutPath != "" {
		cfg.Layout = layoutPath
	}
	if profile != "" {
		cfg.Profile = profile
	}
	if cfg.Patches == 0 {
		cfg.Patches = patches
	}
	if cfg.Cells == 0 {
		cfg.Cells = cells
	}
	if alpha != 0 {
		cfg.Alpha = alpha
	}
	if palpha != 0 {
		cfg.PressureAlpha = palpha
	}
	if logPath != "" {
		cfg.Log = logPath
	}
	if debugPath != "" {
		cfg.DebugLog = debugPath
	}
	if cfg.Listen == "" {
		cfg.Listen = listen
	}
}

// buildSensor constructs and configures the sensor from cfg.
func buildSensor(cfg *Config) (*skin.Skin, error) {
	var sensor *skin.Skin
	var err error
	if cfg.Layout != "" {
		sensor, err = skin.NewFromLayout(cfg.Serial.Port, cfg.Layout)
	} else {
		sensor, err = skin.New(cfg.Serial.Port, cfg.Patches, cfg.Cells)
	}
	if err != nil {
		return nil, err
	}
	sensor.SetBaud(cfg.Serial.Baudrate)
	if cfg.Alpha != 0 {
		if err := sensor.SetAlpha(cfg.Alpha); err != nil {
			return nil, err
		}
	}
	if cfg.PressureAlpha != 0 {
		if err := sensor.SetPressureAlpha(cfg.PressureAlpha); err != nil {
			return nil, err
		}
	}
	if cfg.Profile != "" {
		sensor.ReadProfile(cfg.Profile)
	}
	if cfg.Log != "" {
		if err := sensor.LogStream(cfg.Log); err != nil {
			return nil, err
		}
	}
	if cfg.DebugLog != "" {
		if err := sensor.DebugLogStream(cfg.DebugLog); err != nil {
			return nil, err
		}
	}
	return sensor, nil
}

// keyLoop forwards keypresses to the main loop.
func keyLoop(events chan<- rune) {
	if err := keyboard.Open(); err != nil {
		logrus.WithError(err).Warn("keyboard unavailable")
		return
	}
	defer keyboard.Close()
	for {
		ch, key, err := keyboard.GetKey()
		if err != nil {
			return
		}
		if key == keyboard.KeyEsc {
			events <- 0x1B
			continue
		}
		events <- ch
	}
}
