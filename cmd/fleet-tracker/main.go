// README: Entry point; loads config, wires the tracker, starts HTTP, MQTT ingest and the trip change feed.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleettrack/internal/config"
	httptransport "fleettrack/internal/http"
	"fleettrack/internal/infra"
	"fleettrack/internal/logger"
	"fleettrack/internal/maps"
	"fleettrack/internal/modules/alerts"
	"fleettrack/internal/modules/geofence"
	"fleettrack/internal/modules/location"
	"fleettrack/internal/modules/route"
	"fleettrack/internal/modules/trip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	zl, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("fleet-tracker stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	if cfg.Firebase.ProjectID == "" {
		return errors.New("FLEET_FIREBASE_PROJECT_ID is required")
	}
	tc := cfg.Tracking

	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
	if err != nil {
		return err
	}
	fs, err := app.Firestore(ctx)
	if err != nil {
		return err
	}
	defer fs.Close()
	rtdb, err := app.Database(ctx)
	if err != nil {
		return err
	}
	fcm, err := app.Messaging(ctx)
	if err != nil {
		return err
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		return err
	}

	rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return err
	}
	defer rdb.Close()

	pool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	mapsClient, err := maps.NewClient(cfg.Maps.APIKey, cfg.Maps.RateLimit)
	if err != nil {
		return err
	}

	amqpConn, err := infra.NewRabbitMQ(cfg.AMQP.URL)
	if err != nil {
		return err
	}
	defer amqpConn.Close()
	publisher, err := alerts.NewAMQPPublisher(amqpConn)
	if err != nil {
		return err
	}

	mqttClient, err := infra.NewMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect(250)

	tripStore := trip.NewFirestoreStore(fs)

	routes := route.NewService(
		maps.NewRouteService(mapsClient),
		route.NewRedisCache(rdb, tc.RouteCacheTTL),
		tripStore,
		route.Config{ReuseMeters: tc.RouteReuseMeters, Timeout: tc.ExternalTimeout},
		zl.Named("route"),
	)

	resolver := geofence.NewResolver(tc.DefaultRadiusMeters, tc.ExternalTimeout, zl.Named("geofence"),
		geofence.DefaultStrategies(
			geofence.NewFirestorePlaces(fs),
			geofence.NewCachingGeocoder(maps.NewGeocodeService(mapsClient), rdb, "address", tc.GeocodeCacheTTL, zl),
			geofence.NewCachingGeocoder(maps.NewPlacesService(mapsClient), rdb, "place", tc.GeocodeCacheTTL, zl),
		)...,
	)

	svc := trip.NewService(
		tripStore,
		trip.NewEventStore(pool),
		alerts.Multi{alerts.NewFCMNotifier(fcm), publisher},
		tc.ExternalTimeout,
		zl.Named("trip"),
	)
	tracker := trip.NewTracker(svc, tripStore, resolver, routes, trip.Config{
		ArrivalTick:        tc.ArrivalTick,
		RouteTick:          tc.RouteTick,
		RouteRefreshMeters: tc.RouteRefreshMeters,
		AverageSpeedKmh:    tc.AverageSpeedKmh,
		WriteTimeout:       tc.ExternalTimeout,
	}, zl.Named("tracker"))

	locStore := location.NewStore(pool, rdb)
	locations := location.NewService(tracker, locStore, tc.ExternalTimeout, zl.Named("location"),
		location.NewRTDBMirror(rtdb),
		location.GeoMirror(locStore),
	)
	subscriber := location.NewSubscriber(mqttClient, locations, cfg.MQTT.Topic, zl.Named("mqtt"))

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.ServerDeps{
		Trips:     tracker,
		Location:  locations,
		Positions: locStore,
		Health:    tracker.Len,
		Verifier:  verifier,
		Logger:    zl.Named("http"),
	})

	if err := subscriber.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		err := tripStore.Watch(gctx, "", tracker.HandleChange)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	zl.Info("fleet-tracker started", zap.String("env", cfg.Env))
	err = g.Wait()

	subscriber.Stop()
	locations.Wait()
	tracker.Close()
	svc.Wait()
	routes.Wait()
	return err
}
