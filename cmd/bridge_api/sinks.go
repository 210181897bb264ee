package main

import (
	"context"
	"errors"
	"time"

	"github.com/NotCoffee418/pulse_bridge/pkg/broadcast"
	"github.com/NotCoffee418/pulse_bridge/pkg/config"
	"github.com/NotCoffee418/pulse_bridge/pkg/meterdb"
	"github.com/NotCoffee418/pulse_bridge/pkg/mqtt"
	"github.com/NotCoffee418/pulse_bridge/pkg/obis"
	"go.uber.org/zap"
)

const sinkTimeout = 10 * time.Second

// sinks receives every new snapshot, whether polled, streamed or read from
// the serial head.
type sinks struct {
	hub      *broadcast.Hub
	mqtt     *mqtt.Publisher
	recorder *meterdb.Recorder
	log      *zap.Logger

	store *obis.Store
	mode  func() string
}

func newSinks(cfg *config.BridgeAPIConfig, logger *zap.Logger) (*sinks, error) {
	s := &sinks{log: logger.Named("sinks"), mode: func() string { return "" }}
	s.hub = broadcast.NewHub(s.latest, logger)

	if cfg.RecordReadings {
		rec, err := meterdb.Open(cfg.DatabasePath, logger)
		if err != nil {
			return nil, err
		}
		s.recorder = rec
		logger.Info("recording readings", zap.String("database", cfg.DatabasePath))
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(mqtt.Settings{
			Broker:      cfg.MQTT.Broker,
			Port:        cfg.MQTT.Port,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.mqtt = pub
		logger.Info("MQTT publisher initialized",
			zap.String("broker", cfg.MQTT.Broker),
			zap.String("topic_prefix", cfg.MQTT.TopicPrefix))
	}
	return s, nil
}

// attach points the sinks at the store they serve.
func (s *sinks) attach(store *obis.Store, mode func() string) {
	s.store = store
	s.mode = mode
}

func (s *sinks) latest() []byte {
	if s.store == nil {
		return nil
	}
	snap := s.store.Snapshot()
	if snap.Len() == 0 {
		return nil
	}
	return snap.ToJsonBytes()
}

func (s *sinks) publish(snap *obis.Snapshot) {
	if snap.Len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	s.hub.Broadcast(snap.ToJsonBytes())

	var errs []error
	if s.mqtt != nil {
		errs = append(errs, s.mqtt.PublishSnapshot(ctx, snap))
	}
	if s.recorder != nil {
		errs = append(errs, s.recorder.Record(ctx, s.mode(), snap))
	}
	if err := errors.Join(errs...); err != nil {
		s.log.Warn("snapshot sink failed", zap.Error(err))
	}
}

func (s *sinks) Close() {
	s.hub.Close()
	if s.mqtt != nil {
		s.mqtt.Close()
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.log.Warn("closing recorder", zap.Error(err))
		}
	}
}
