package main

import (
	"context"
	"fmt"

	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/aggregator"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/config"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/database"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/influxdb"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/logging"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/infrastructure/mqtt"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/measurement"
	"github.com/oliverschmidt99/Bachelorarbeit-Fremdfeldbeeinflussung-Messstromwandler/internal/store"
)

// app holds the infrastructure shared by the commands. MQTT and InfluxDB are
// nil when disabled or unreachable.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	db     *database.DB
	store  *store.Store
	mqtt   *mqtt.Client
	influx *influxdb.Client
}

// openApp opens and migrates the store. With backends set it also connects
// to MQTT and InfluxDB; a failing optional backend is logged and left nil
// unless requireMQTT is set.
func openApp(ctx context.Context, cfg *config.Config, log *logging.Logger, backends, requireMQTT bool) (*app, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("database ready", "path", cfg.Database.Path)

	st := store.New(db, sidecarFields(cfg.Aggregation.SidecarFields))
	st.SetLogger(log.Component("store"))

	a := &app{cfg: cfg, log: log, db: db, store: st}
	if !backends {
		return a, nil
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		switch {
		case err == nil:
			client.SetLogger(log.Component("mqtt"))
			client.SetOnDisconnect(func(err error) {
				log.Warn("MQTT disconnected", "error", err)
			})
			a.mqtt = client
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"topic_prefix", cfg.MQTT.TopicPrefix,
			)
		case requireMQTT:
			a.Close()
			return nil, fmt.Errorf("connecting to MQTT: %w", err)
		default:
			log.Warn("MQTT unavailable, store updates will not be announced", "error", err)
		}
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, records will not be exported", "error", err)
		} else {
			client.SetAccuracyClass(cfg.Accuracy.Class)
			client.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			a.influx = client
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	return a, nil
}

// Close releases the backends in reverse order of opening.
func (a *app) Close() {
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			a.log.Error("error closing InfluxDB", "error", err)
		}
	}
	if a.mqtt != nil {
		if err := a.mqtt.Close(); err != nil {
			a.log.Error("error closing MQTT", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Error("error closing database", "error", err)
	}
}

// newAggregator wires the pipeline components from configuration.
func (a *app) newAggregator() (*aggregator.Aggregator, error) {
	agg := a.cfg.Aggregation

	rules := make([]measurement.ManufacturerRule, len(agg.Manufacturers))
	for i, m := range agg.Manufacturers {
		rules[i] = measurement.ManufacturerRule{Match: m.Match, Name: m.Name}
	}

	deps := aggregator.Deps{
		Store: a.store,
		Parser: measurement.NewFilenameParser(measurement.ParserOptions{
			Manufacturers: rules,
			Fallback:      agg.FallbackManufacturer,
			SortedSuffix:  agg.FileSuffix,
		}),
		Resolver:    measurement.NewChannelResolver(agg.Levels, agg.Phases),
		Selector:    measurement.NewKeywordSelector(agg.ReferenceKeywords),
		Computer:    measurement.NewStatisticsComputer(agg.NominalRefName, agg.PlaceholderNames),
		Logger:      a.log.Component("aggregator"),
		SearchDir:   agg.SearchDir,
		Suffix:      agg.FileSuffix,
		Concurrency: agg.Concurrency,
	}
	// Typed nil pointers must not reach the interfaces.
	if a.mqtt != nil {
		deps.Publisher = a.mqtt
	}
	if a.influx != nil {
		deps.Exporter = a.influx
	}

	return aggregator.New(deps)
}

func sidecarFields(fields []config.SidecarField) []store.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]store.Field, len(fields))
	for i, f := range fields {
		out[i] = store.Field{Name: f.Name, Kind: store.FieldKind(f.Kind)}
	}
	return out
}
