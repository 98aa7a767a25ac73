package cycle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"budgettracker/internal/core"
)

const DefaultCycleID = "default-salary"

var (
	ErrCycleNotFound  = errors.New("cycle not found")
	ErrDuplicateCycle = errors.New("cycle id already in use")
)

type (
	Notifications struct {
		DailyReminder bool   `json:"dailyReminder"`
		ReminderTime  string `json:"reminderTime"`
		BudgetAlerts  bool   `json:"budgetAlerts"`
		WeeklySummary bool   `json:"weeklySummary"`
	}

	// Settings is the per-user configuration, including the budget cycles.
	// At most one cycle is active and ActiveCycleID always names it.
	Settings struct {
		Cycles          []Cycle       `json:"budgetCycles"`
		ActiveCycleID   string        `json:"activeCycleId,omitempty"`
		Notifications   Notifications `json:"notifications"`
		Theme           string        `json:"theme"`
		DefaultCurrency core.Currency `json:"defaultCurrency"`
	}
)

// DefaultSettings returns the settings a new user starts with: one salary
// cycle covering the whole month.
func DefaultSettings() Settings {
	return Settings{
		Cycles: []Cycle{{
			ID:       DefaultCycleID,
			Name:     "Monthly Salary",
			Type:     Salary,
			StartDay: 1,
			EndDay:   31,
			IsActive: true,
		}},
		ActiveCycleID: DefaultCycleID,
		Notifications: Notifications{
			DailyReminder: true,
			ReminderTime:  "20:00",
			BudgetAlerts:  true,
			WeeklySummary: false,
		},
		Theme:           "system",
		DefaultCurrency: core.DefaultCurrency,
	}
}

func (s Settings) Validate() error {
	seen := make(map[string]bool, len(s.Cycles))
	for _, c := range s.Cycles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("cycle %q: %w", c.Name, err)
		}
		if c.ID == "" {
			continue
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateCycle, c.ID)
		}
		seen[c.ID] = true
	}
	if s.ActiveCycleID != "" && s.indexOf(s.ActiveCycleID) < 0 {
		return fmt.Errorf("active %w: %s", ErrCycleNotFound, s.ActiveCycleID)
	}
	if s.DefaultCurrency != "" && !s.DefaultCurrency.Supported() {
		return core.ErrInvalidCurrency
	}
	return nil
}

// ActiveCycle returns a copy of the active cycle, or nil when none is active.
func (s *Settings) ActiveCycle() *Cycle {
	i := s.indexOf(s.ActiveCycleID)
	if i < 0 {
		return nil
	}
	c := s.Cycles[i]
	return &c
}

// AddCycle assigns an ID to c when it has none and appends it. IDs must be
// unique within the settings. The first cycle added to an empty set becomes
// active.
func (s *Settings) AddCycle(c Cycle) (Cycle, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if s.indexOf(c.ID) >= 0 {
		return Cycle{}, fmt.Errorf("%w: %s", ErrDuplicateCycle, c.ID)
	}
	if err := c.Validate(); err != nil {
		return Cycle{}, err
	}
	c.IsActive = false
	s.Cycles = append(s.Cycles, c)
	if len(s.Cycles) == 1 {
		s.activate(c.ID)
	}
	return s.Cycles[len(s.Cycles)-1], nil
}

// UpdateCycle replaces the cycle with the same ID, keeping its active flag.
func (s *Settings) UpdateCycle(c Cycle) error {
	i := s.indexOf(c.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrCycleNotFound, c.ID)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	c.IsActive = s.Cycles[i].IsActive
	s.Cycles[i] = c
	return nil
}

// DeleteCycle removes a cycle. Deleting the active cycle promotes the first
// remaining one, or leaves no active cycle when none remain.
func (s *Settings) DeleteCycle(id string) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrCycleNotFound, id)
	}
	s.Cycles = append(s.Cycles[:i:i], s.Cycles[i+1:]...)
	if s.ActiveCycleID == id {
		if len(s.Cycles) > 0 {
			s.activate(s.Cycles[0].ID)
		} else {
			s.activate("")
		}
	}
	return nil
}

func (s *Settings) SetActiveCycle(id string) error {
	if s.indexOf(id) < 0 {
		return fmt.Errorf("%w: %s", ErrCycleNotFound, id)
	}
	s.activate(id)
	return nil
}

func (s *Settings) activate(id string) {
	s.ActiveCycleID = id
	for i := range s.Cycles {
		s.Cycles[i].IsActive = s.Cycles[i].ID == id
	}
}

func (s *Settings) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range s.Cycles {
		if c.ID == id {
			return i
		}
	}
	return -1
}
