package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"budgettracker/internal/core"
	"budgettracker/internal/cycle"
	"budgettracker/internal/repository"
)

// SettingsService reads and edits per-user settings. Users who never saved
// anything get cycle.DefaultSettings.
type SettingsService struct {
	repo   repository.SettingsRepository
	logger *slog.Logger

	// onChange is called after a successful save, e.g. to drop cached stats.
	onChange func(userID string)
}

func NewSettingsService(repo repository.SettingsRepository, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{repo: repo, logger: logger}
}

// OnChange registers a callback run after settings are saved.
func (s *SettingsService) OnChange(fn func(userID string)) {
	s.onChange = fn
}

func (s *SettingsService) Get(ctx context.Context, userID string) (cycle.Settings, error) {
	st, err := s.repo.LoadSettings(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return cycle.DefaultSettings(), nil
	}
	if err != nil {
		return cycle.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return st, nil
}

// Update replaces the user's settings after validation.
func (s *SettingsService) Update(ctx context.Context, userID string, st cycle.Settings) (cycle.Settings, error) {
	if st.DefaultCurrency == "" {
		st.DefaultCurrency = core.DefaultCurrency
	}
	st.Cycles = append([]cycle.Cycle(nil), st.Cycles...)
	for i := range st.Cycles {
		if st.Cycles[i].ID == "" {
			st.Cycles[i].ID = uuid.NewString()
		}
	}
	if st.ActiveCycleID == "" {
		for _, c := range st.Cycles {
			if c.IsActive {
				st.ActiveCycleID = c.ID
				break
			}
		}
	}
	if err := st.Validate(); err != nil {
		return cycle.Settings{}, err
	}
	for i := range st.Cycles {
		st.Cycles[i].IsActive = st.Cycles[i].ID == st.ActiveCycleID
	}
	if err := s.save(ctx, userID, st); err != nil {
		return cycle.Settings{}, err
	}
	return st, nil
}

func (s *SettingsService) save(ctx context.Context, userID string, st cycle.Settings) error {
	if err := s.repo.SaveSettings(ctx, userID, st); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if s.onChange != nil {
		s.onChange(userID)
	}
	return nil
}

// edit loads, mutates and saves settings in one step.
func (s *SettingsService) edit(ctx context.Context, userID string, fn func(*cycle.Settings) error) (cycle.Settings, error) {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return cycle.Settings{}, err
	}
	if err := fn(&st); err != nil {
		return cycle.Settings{}, err
	}
	if err := s.save(ctx, userID, st); err != nil {
		return cycle.Settings{}, err
	}
	return st, nil
}

func (s *SettingsService) AddCycle(ctx context.Context, userID string, c cycle.Cycle) (cycle.Cycle, error) {
	var added cycle.Cycle
	_, err := s.edit(ctx, userID, func(st *cycle.Settings) error {
		var err error
		added, err = st.AddCycle(c)
		return err
	})
	if err != nil {
		return cycle.Cycle{}, err
	}
	s.logger.InfoContext(ctx, "Budget cycle added", "component", "settings", "user_id", userID, "cycle_id", added.ID)
	return added, nil
}

func (s *SettingsService) UpdateCycle(ctx context.Context, userID string, c cycle.Cycle) (cycle.Settings, error) {
	return s.edit(ctx, userID, func(st *cycle.Settings) error {
		return st.UpdateCycle(c)
	})
}

func (s *SettingsService) DeleteCycle(ctx context.Context, userID, cycleID string) (cycle.Settings, error) {
	return s.edit(ctx, userID, func(st *cycle.Settings) error {
		return st.DeleteCycle(cycleID)
	})
}

func (s *SettingsService) ActivateCycle(ctx context.Context, userID, cycleID string) (cycle.Settings, error) {
	return s.edit(ctx, userID, func(st *cycle.Settings) error {
		return st.SetActiveCycle(cycleID)
	})
}

// ActiveCycle returns the user's active cycle, or nil when none is set.
func (s *SettingsService) ActiveCycle(ctx context.Context, userID string) (*cycle.Cycle, error) {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return st.ActiveCycle(), nil
}

// DefaultCurrency returns the user's preferred currency, falling back to
// core.DefaultCurrency on any error.
func (s *SettingsService) DefaultCurrency(ctx context.Context, userID string) core.Currency {
	st, err := s.Get(ctx, userID)
	if err != nil || !st.DefaultCurrency.Supported() {
		return core.DefaultCurrency
	}
	return st.DefaultCurrency
}
