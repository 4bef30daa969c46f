// README: Driver prompts over FCM and operator events over AMQP for trip transitions.
package alerts

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"fleettrack/internal/modules/trip"
)

// Sender is the subset of *messaging.Client used here.
type Sender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// FCMNotifier sends the loud arrival prompt to the driver's topic.
type FCMNotifier struct {
	sender Sender
}

func NewFCMNotifier(sender Sender) *FCMNotifier {
	return &FCMNotifier{sender: sender}
}

// DriverTopic is the FCM topic a driver's device subscribes to.
func DriverTopic(driverID string) string {
	return "driver_" + driverID
}

func (n *FCMNotifier) Notify(ctx context.Context, t trip.Trip, e trip.Event) error {
	if e.To != trip.StatusAwaitingConfirmation || t.DriverID == "" {
		return nil
	}
	msg := arrivalPrompt(t)
	if _, err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send arrival prompt for trip %s: %w", t.ID, err)
	}
	return nil
}

func arrivalPrompt(t trip.Trip) *messaging.Message {
	dest := t.Destination.Name
	if dest == "" {
		dest = "your destination"
	}
	return &messaging.Message{
		Topic: DriverTopic(string(t.DriverID)),
		Data: map[string]string{
			"type":    "arrival_confirmation",
			"trip_id": string(t.ID),
		},
		Notification: &messaging.Notification{
			Title: "Arrived?",
			Body:  fmt.Sprintf("You are at %s. Confirm arrival to finish the trip.", dest),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "arrival",
				Priority:  messaging.PriorityMax,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}
