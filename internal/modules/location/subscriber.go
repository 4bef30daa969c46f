package location

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const DefaultTopic = "fleet/drivers/+/location"

// Subscriber feeds MQTT location messages into the Service.
type Subscriber struct {
	client mqtt.Client
	svc    *Service
	topic  string
	log    *zap.Logger
}

func NewSubscriber(client mqtt.Client, svc *Service, topic string, log *zap.Logger) *Subscriber {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Subscriber{client: client, svc: svc, topic: topic, log: log}
}

func (s *Subscriber) Start() error {
	token := s.client.Subscribe(s.topic, 1, s.handleMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	s.log.Info("mqtt subscribed", zap.String("topic", s.topic))
	return nil
}

func (s *Subscriber) Stop() {
	token := s.client.Unsubscribe(s.topic)
	token.Wait()
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw RawUpdate
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.Debug("invalid location message", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	if raw.DriverID == "" {
		raw.DriverID = driverFromTopic(msg.Topic())
	}
	s.svc.Ingest(context.Background(), raw)
}

// driverFromTopic extracts {id} from fleet/drivers/{id}/location.
func driverFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "drivers" && parts[i+2] == "location" {
			return parts[i+1]
		}
	}
	return ""
}
