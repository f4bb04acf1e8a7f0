package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/sweeney/incubator/internal/alert"
	"github.com/sweeney/incubator/internal/config"
	"github.com/sweeney/incubator/internal/controller"
	"github.com/sweeney/incubator/internal/gpio"
	"github.com/sweeney/incubator/internal/history"
	"github.com/sweeney/incubator/internal/log"
	"github.com/sweeney/incubator/internal/metrics"
	"github.com/sweeney/incubator/internal/mqtt"
	"github.com/sweeney/incubator/internal/sensor"
	"github.com/sweeney/incubator/internal/status"
	"github.com/sweeney/incubator/internal/web"
)

// daemon holds the collaborators of one run. Recorder may be nil.
type daemon struct {
	cfg       *config.Config
	log       logr.Logger
	source    sensor.Source
	outputs   gpio.Outputs
	publisher mqtt.Publisher
	inbox     *controller.Inbox
	tracker   *status.Tracker
	metrics   *metrics.Metrics
	recorder  history.Recorder
	sleep     func(time.Duration)
	now       func() time.Time
}

// run builds the hardware, broker and history clients and runs until ctx ends.
func run(ctx context.Context, cfg *config.Config) error {
	logger, err := log.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Sync(logger)

	outputs, err := gpio.NewRealOutputs(cfg.Pins())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer outputs.Close()

	m := metrics.New()
	tracker := status.NewTracker(time.Now(), status.Config{
		SampleMs:   cfg.SampleInterval.Milliseconds(),
		PublishMs:  cfg.PublishInterval.Milliseconds(),
		Broker:     cfg.MQTT.Broker,
		TopicRoot:  cfg.MQTT.TopicRoot,
		HTTPAddr:   cfg.HTTPAddr,
		Thresholds: cfg.LogicThresholds(),
	}, cfg.AlertHistory)
	inbox := controller.NewInbox()

	client, err := mqtt.NewRealClient(ctx, mqtt.ClientConfig{
		Broker:          cfg.MQTT.Broker,
		ClientID:        cfg.MQTT.ClientID,
		Username:        cfg.MQTT.Username,
		Password:        cfg.MQTT.Password,
		TopicRoot:       cfg.MQTT.TopicRoot,
		ConnectAttempts: cfg.MQTT.ConnectAttempts,
		OnCommand:       controller.CommandHandler(inbox, m, tracker, logger),
	}, logger)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	d := &daemon{
		cfg:       cfg,
		log:       logger,
		source:    sensor.NewIIOSource(cfg.Sensor.Device, logger),
		outputs:   outputs,
		publisher: client,
		inbox:     inbox,
		tracker:   tracker,
		metrics:   m,
		sleep:     time.Sleep,
		now:       time.Now,
	}

	if cfg.Influx.URL != "" {
		rec, err := history.NewInfluxRecorder(history.Config{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
			Device: cfg.MQTT.ClientID,
		}, logger)
		if err != nil {
			return fmt.Errorf("init history: %w", err)
		}
		defer rec.Close()
		d.recorder = rec
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(err, "http server")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	return d.run(ctx, ticker.C)
}

// run drives the controller until ctx ends, then announces going offline
// and switches every output off.
func (d *daemon) run(ctx context.Context, tick <-chan time.Time) error {
	esc := alert.NewEscalator(d.outputs, d.publisher, d.log,
		alert.WithPulse(d.cfg.AlertPulse),
		alert.WithMetrics(d.metrics),
		alert.WithSleep(d.sleep))

	cfg := controller.Config{
		Source:          d.source,
		Outputs:         d.outputs,
		Publisher:       d.publisher,
		Escalator:       esc,
		Inbox:           d.inbox,
		Thresholds:      d.cfg.LogicThresholds(),
		SampleInterval:  d.cfg.SampleInterval,
		PublishInterval: d.cfg.PublishInterval,
		Display:         d.tracker,
		Status:          d.tracker,
		Recorder:        d.recorder,
		Metrics:         d.metrics,
		Log:             d.log,
		Now:             d.now,
	}
	ctrl, err := controller.New(cfg)
	if err != nil {
		return err
	}

	d.log.Info("started",
		"broker", d.cfg.MQTT.Broker,
		"topicRoot", d.cfg.MQTT.TopicRoot,
		"sample", d.cfg.SampleInterval.String(),
		"publish", d.cfg.PublishInterval.String())

	if err := ctrl.Run(ctx, tick); err != nil {
		return err
	}

	reason := shutdownReason(ctx)
	d.log.Info("shutting down", "reason", reason)
	if err := d.publisher.PublishStatus(mqtt.NewStatusPayload(mqtt.StatusOffline, reason, d.now())); err != nil {
		d.log.Error(err, "publish offline status")
	}
	if err := d.outputs.Close(); err != nil {
		d.log.Error(err, "release outputs")
	}
	return nil
}
