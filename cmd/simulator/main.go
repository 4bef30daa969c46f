// README: Driver simulator; publishes a straight-line approach to a destination over MQTT.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"fleettrack/internal/geo"
	"fleettrack/internal/infra"
	"fleettrack/internal/modules/location"
	"fleettrack/internal/types"
)

type Config struct {
	Broker   string
	DriverID string
	TripID   string
	Start    types.Point
	Dest     types.Point
	Steps    int
	Interval time.Duration
	SpeedKmh float64
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := infra.NewMQTT(cfg.Broker, "fleet-sim-"+uuid.NewString()[:8])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Disconnect(250)

	if err := drive(ctx, client, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (Config, error) {
	var cfg Config
	var start, dest string
	flag.StringVar(&cfg.Broker, "broker", envOrDefault("FLEET_MQTT_BROKER", "tcp://localhost:1883"), "MQTT broker URL")
	flag.StringVar(&cfg.DriverID, "driver", envOrDefault("FLEET_SIM_DRIVER", "driver-1"), "Driver id")
	flag.StringVar(&cfg.TripID, "trip", envOrDefault("FLEET_SIM_TRIP", ""), "Trip id hint (optional)")
	flag.StringVar(&start, "from", "25.0330,121.5654", "Start as lat,lng")
	flag.StringVar(&dest, "to", "25.0478,121.5170", "Destination as lat,lng")
	flag.IntVar(&cfg.Steps, "steps", 20, "Number of fixes to publish")
	flag.DurationVar(&cfg.Interval, "interval", 5*time.Second, "Delay between fixes")
	flag.Float64Var(&cfg.SpeedKmh, "speed", 35, "Reported speed in km/h")
	flag.Parse()

	var err error
	if cfg.Start, err = parsePoint(start); err != nil {
		return Config{}, fmt.Errorf("-from: %w", err)
	}
	if cfg.Dest, err = parsePoint(dest); err != nil {
		return Config{}, fmt.Errorf("-to: %w", err)
	}
	if cfg.Steps < 1 {
		return Config{}, fmt.Errorf("-steps must be at least 1")
	}
	return cfg, nil
}

// drive publishes Steps fixes evenly spaced from Start to Dest; the last one
// lands on the destination.
func drive(ctx context.Context, client mqtt.Client, cfg Config) error {
	topic := "fleet/drivers/" + cfg.DriverID + "/location"
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for i := 1; i <= cfg.Steps; i++ {
		f := float64(i) / float64(cfg.Steps)
		p := types.Point{
			Lat: cfg.Start.Lat + (cfg.Dest.Lat-cfg.Start.Lat)*f,
			Lng: cfg.Start.Lng + (cfg.Dest.Lng-cfg.Start.Lng)*f,
		}
		payload, err := json.Marshal(location.RawUpdate{
			DriverID:  cfg.DriverID,
			TripID:    cfg.TripID,
			Latitude:  p.Lat,
			Longitude: p.Lng,
			Speed:     cfg.SpeedKmh,
			SpeedUnit: "kmh",
			Accuracy:  8,
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			return err
		}
		tok := client.Publish(topic, 1, false, payload)
		if tok.Wait() && tok.Error() != nil {
			return fmt.Errorf("publish: %w", tok.Error())
		}
		fmt.Printf("%2d/%d %s remaining=%.0fm\n", i, cfg.Steps, p, geo.DistanceMeters(p, cfg.Dest))

		if i == cfg.Steps {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func parsePoint(s string) (types.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return types.Point{}, fmt.Errorf("want lat,lng, got %q", s)
	}
	var p types.Point
	var err error
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return types.Point{}, err
	}
	if p.Lng, err = strconv.ParseFloat(strings.TrimSpace(lng), 64); err != nil {
		return types.Point{}, err
	}
	if !p.Valid() {
		return types.Point{}, fmt.Errorf("out of range: %q", s)
	}
	return p, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
