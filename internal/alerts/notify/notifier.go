// Package notify delivers plant condition changes to operators.
package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"plantfleet/internal/fleet/application"
	"plantfleet/internal/observability/metrics"
)

// Clock provides time for dedupe windows.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders condition events and sends them through a channel.
type Notifier struct {
	channel        Channel
	template       *Template
	clock          Clock
	logger         zerolog.Logger
	mu             sync.Mutex
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	minSeverity    int
	requestTimeout time.Duration
}

var _ application.ConditionNotifier = (*Notifier)(nil)

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithLogger assigns a logger for delivery failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// WithRequestTimeout bounds a single delivery.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same plant.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithMinSeverity drops changes where neither side reaches level.
func WithMinSeverity(level int) Option {
	return func(n *Notifier) {
		if level > 0 {
			n.minSeverity = level
		}
	}
}

// NewNotifier constructs a condition notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("condition notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		logger:         zerolog.Nop(),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements application.ConditionNotifier. Failures are logged and
// never surface to the caller.
func (n *Notifier) Notify(ctx context.Context, event application.ConditionEvent) {
	if n == nil || n.channel == nil {
		return
	}
	if event.Previous == event.Current {
		return
	}
	if max(event.Previous, event.Current) < n.minSeverity {
		return
	}
	content, err := n.template.Render(buildTemplateData(event))
	if err != nil {
		n.logger.Warn().Err(err).Str("plant_id", event.PlantID).Msg("render condition notification")
		return
	}
	if !n.shouldSend(event.PlantID, content) {
		return
	}

	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	name := channelName(n.channel)
	if err := n.channel.Send(ctx, content); err != nil {
		metrics.IncNotification(name, false)
		n.logger.Warn().Err(err).Str("channel", name).Str("plant_id", event.PlantID).Msg("send condition notification")
		return
	}
	metrics.IncNotification(name, true)
	n.markSent(event.PlantID, content)
}

func buildTemplateData(event application.ConditionEvent) TemplateData {
	site := event.SiteName
	if site == "" {
		site = event.SiteID
	}
	plant := event.PlantNum
	if plant == "" {
		plant = event.PlantID
	}
	direction := "improved"
	if event.Current > event.Previous {
		direction = "degraded"
	}
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}
	return TemplateData{
		Site:           site,
		SiteID:         event.SiteID,
		SiteNum:        event.SiteNum,
		Plant:          plant,
		PlantID:        event.PlantID,
		Region:         event.Region,
		Previous:       event.Previous,
		Current:        event.Current,
		PreviousLabel:  conditionLabel(event.Previous),
		CurrentLabel:   conditionLabel(event.Current),
		Direction:      direction,
		DirectionLabel: directionLabel(direction),
		Submitter:      event.Submitter,
		Time:           at.UTC().Format(time.RFC3339),
		Suggestion:     suggestionFor(event.Current),
		LogItemID:      event.LogItemID,
	}
}

func conditionLabel(level int) string {
	switch level {
	case 0:
		return "nominal"
	case 1:
		return "warning"
	case 2:
		return "critical"
	default:
		return "level " + strconv.Itoa(level)
	}
}

func directionLabel(direction string) string {
	switch direction {
	case "degraded":
		return "Degraded"
	case "improved":
		return "Improved"
	default:
		return direction
	}
}

func suggestionFor(level int) string {
	switch {
	case level >= 2:
		return "Dispatch a technician and verify runtime and load."
	case level == 1:
		return "Review the latest readings at the next routine."
	default:
		return "No action required."
	}
}

func (n *Notifier) shouldSend(plantID, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[plantID]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(plantID, content string) {
	n.mu.Lock()
	n.sent[plantID] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
