package domain

import (
	"context"
	"errors"
	"time"
)

type Event string

const (
	EventPublish Event = "publish"
	EventUpdate  Event = "update"
	EventDelete  Event = "delete"
)

// ParseEvent accepts only the events a webhook may subscribe to.
func ParseEvent(value string) (Event, bool) {
	switch Event(value) {
	case EventPublish, EventUpdate, EventDelete:
		return Event(value), true
	default:
		return "", false
	}
}

const (
	DefaultDeliveryLimit = 50
	MaxDeliveryLimit     = 200
	MaxResponseBodyBytes = 1024
	DeliveryTimeout      = 10 * time.Second
)

const (
	HeaderSignature = "X-Packhub-Signature"
	HeaderEvent     = "X-Packhub-Event"
	HeaderDelivery  = "X-Packhub-Delivery"
)

type Service interface {
	Create(ctx context.Context, actor, packName string, req CreateRequest) (*Response, error)
	List(ctx context.Context, actor, packName string) ([]Response, error)
	Get(ctx context.Context, actor, id string) (*Response, error)
	Update(ctx context.Context, actor, id string, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, actor, id string) error
	GetDeliveries(ctx context.Context, actor, id string, limit int) ([]Delivery, error)

	// Dispatch notifies every active subscriber of event and returns the
	// number of 2xx responses. Delivery failures are recorded, never returned.
	Dispatch(ctx context.Context, packName string, event Event, data any, version string) (int, error)
	// DispatchTo notifies hooks as given, without reloading or storing
	// delivery rows.
	DispatchTo(ctx context.Context, hooks []Webhook, packName string, event Event, data any, version string) (int, error)
	// Subscribers lists the active hooks of packName subscribed to event.
	Subscribers(ctx context.Context, packName string, event Event) ([]Webhook, error)
}

type CreateRequest struct {
	URL    string   `json:"url"`
	Secret *string  `json:"secret"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
}

type UpdateRequest struct {
	URL    *string   `json:"url"`
	Secret *string   `json:"secret"`
	Events *[]string `json:"events"`
	Active *bool     `json:"active"`
}

type Response struct {
	ID        string    `json:"id"`
	PackName  string    `json:"pack_name"`
	URL       string    `json:"url"`
	HasSecret bool      `json:"has_secret"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Payload is the body posted to subscribers.
type Payload struct {
	Event     Event   `json:"event"`
	Pack      string  `json:"pack"`
	Version   *string `json:"version"`
	Timestamp string  `json:"timestamp"`
	Data      any     `json:"data"`
}

var (
	ErrInvalidID     = errors.New("invalid_webhook_id")
	ErrInvalidURL    = errors.New("invalid_webhook_url")
	ErrInvalidEvents = errors.New("invalid_webhook_events")
	ErrNotFound      = errors.New("webhook_not_found")
	ErrForbidden     = errors.New("webhook_forbidden")
	ErrPackNotFound  = errors.New("webhook_pack_not_found")
)

// Job is a dispatch handed off to run after the triggering request returns.
type Job struct {
	Pack    string
	Event   Event
	Data    any
	Version string
	// Hooks pins the subscribers for events whose hooks are removed before
	// the job runs.
	Hooks []Webhook
}

type Enqueuer interface {
	Enqueue(job Job) bool
}
