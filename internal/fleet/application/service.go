package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"plantfleet/internal/audit"
	"plantfleet/internal/fleet/domain"
	"plantfleet/internal/fleet/store"
	"plantfleet/internal/observability/metrics"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// CompanyConfigProvider supplies the company-wide thresholds.
type CompanyConfigProvider interface {
	CompanyConfig(ctx context.Context) (domain.CompanyConfig, error)
}

// StaticCompanyConfig serves a fixed configuration.
type StaticCompanyConfig domain.CompanyConfig

// CompanyConfig implements CompanyConfigProvider.
func (c StaticCompanyConfig) CompanyConfig(context.Context) (domain.CompanyConfig, error) {
	return domain.CompanyConfig(c), nil
}

// ConditionNotifier publishes committed condition changes.
type ConditionNotifier interface {
	Notify(ctx context.Context, event ConditionEvent)
}

// ConditionEvent describes a committed condition change of a plant.
type ConditionEvent struct {
	SiteID    string    `json:"siteId"`
	SiteNum   string    `json:"siteNum"`
	SiteName  string    `json:"siteName"`
	Region    string    `json:"region,omitempty"`
	PlantID   string    `json:"plantId"`
	PlantNum  string    `json:"plantNum"`
	Previous  int       `json:"previous"`
	Current   int       `json:"current"`
	Submitter string    `json:"submitter"`
	LogItemID string    `json:"logItemId,omitempty"`
	At        time.Time `json:"at"`
}

// Outcome summarises a committed update.
type Outcome struct {
	SiteID            string
	PlantID           string
	PreviousCondition *int
	Condition         *int
	SerialStatus      *int
	LogItems          []*audit.LogItem
}

// Service applies update site requests.
type Service struct {
	store       store.Store
	company     CompanyConfigProvider
	coordinator *Coordinator
	notifier    ConditionNotifier
	clock       Clock
	logger      zerolog.Logger
	newID       func() string
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier ConditionNotifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithIDGenerator overrides id generation for created entities.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService constructs an update site service.
func NewService(st store.Store, company CompanyConfigProvider, opts ...ServiceOption) (*Service, error) {
	if st == nil {
		return nil, errors.New("update site: nil store")
	}
	if company == nil {
		return nil, errors.New("update site: nil company config provider")
	}
	service := &Service{
		store:   st,
		company: company,
		clock:   systemClock{},
		logger:  zerolog.Nop(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(service)
	}
	service.coordinator = NewCoordinator(service.clock)
	return service, nil
}

// UpdateSite applies req in a single transaction. Nothing is persisted when
// an error is returned.
func (s *Service) UpdateSite(ctx context.Context, req UpdateSiteRequest) (*Outcome, error) {
	if s == nil {
		return nil, ErrNilService
	}
	start := time.Now()
	outcome, event, err := s.updateSite(ctx, req)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveSiteUpdate(result, time.Since(start))
	if err != nil {
		s.logger.Error().Err(err).Str("site_num", req.Site.SiteNum).Msg("update site failed")
		return nil, err
	}

	for _, item := range outcome.LogItems {
		metrics.IncAuditItem(string(item.Kind))
	}
	if outcome.PreviousCondition != nil && outcome.Condition != nil {
		metrics.ObserveConditionTransition(*outcome.PreviousCondition, *outcome.Condition)
	}
	if event != nil && s.notifier != nil {
		s.notifier.Notify(ctx, *event)
	}
	s.logger.Info().
		Str("site_id", outcome.SiteID).
		Str("plant_id", outcome.PlantID).
		Int("log_items", len(outcome.LogItems)).
		Dur("elapsed", time.Since(start)).
		Msg("site updated")
	return outcome, nil
}

func (s *Service) updateSite(ctx context.Context, req UpdateSiteRequest) (*Outcome, *ConditionEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	company, err := s.company.CompanyConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load company config: %w", err)
	}
	if req.Company != nil {
		company = company.Merge(*req.Company)
	}

	var (
		outcome *Outcome
		event   *ConditionEvent
	)
	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		outcome, event = nil, nil
		snap, err := s.coordinator.Checkout(ctx, tx, req)
		if err != nil {
			return err
		}
		if req.Plant != nil && snap.Plant == nil {
			s.logger.Warn().Str("site_id", snap.Site.ID).Str("plant_num", req.Plant.PlantNum).Msg("plant not found at site, skipping plant updates")
		}

		env := &stepEnv{
			tx:      tx,
			snap:    snap,
			req:     req,
			company: company,
			catalog: newTxCatalog(tx, snap.staging),
			now:     s.clock.Now().UTC(),
			newID:   s.newID,
			logger:  s.logger,
		}
		env.prepare()
		env.before = env.evaluate(ctx, env.reading)

		delta, err := runPipeline(ctx, env)
		if err != nil {
			return err
		}

		outcome = &Outcome{SiteID: snap.Site.ID, SerialStatus: delta.SerialStatus}
		plantID := ""
		if snap.Plant != nil {
			plantID = snap.Plant.ID
			outcome.PlantID = plantID
		}
		if env.before != nil {
			v := env.before.Condition
			outcome.PreviousCondition = &v
		}
		if env.after != nil {
			v := env.after.Condition
			outcome.Condition = &v
		}

		if len(delta.Comments) > 0 {
			date := env.now
			if env.routineEdited {
				date = snap.Routine.EditDate
			}
			item := audit.NewCommentLog(req.Submitter, snap.Site.ID, plantID, date, delta.Comments)
			if err := audit.Append(ctx, tx, item); err != nil {
				return fmt.Errorf("append comment log: %w", err)
			}
			outcome.LogItems = append(outcome.LogItems, item)

			if env.before != nil && env.after != nil && env.before.Condition != env.after.Condition {
				event = &ConditionEvent{
					SiteID:    snap.Site.ID,
					SiteNum:   snap.Site.SiteNum,
					SiteName:  snap.Site.Name,
					Region:    snap.Site.Region,
					PlantID:   plantID,
					PlantNum:  snap.Plant.PlantNum,
					Previous:  env.before.Condition,
					Current:   env.after.Condition,
					Submitter: req.Submitter,
					LogItemID: item.ID,
					At:        date,
				}
			}
		}
		if delta.SerialStatus != nil {
			item := audit.NewSerialNumberLog(req.Submitter, snap.Site.ID, plantID, env.now, *delta.SerialStatus, delta.SerialChanges)
			if err := audit.Append(ctx, tx, item); err != nil {
				return fmt.Errorf("append serial-number log: %w", err)
			}
			outcome.LogItems = append(outcome.LogItems, item)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outcome, event, nil
}
