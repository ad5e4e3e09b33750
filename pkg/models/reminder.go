package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Frequency string

const (
	FrequencyOnce   Frequency = "once"
	FrequencyTwice  Frequency = "twice"
	FrequencyThrice Frequency = "thrice"
	FrequencyFour   Frequency = "four"
)

// TimesPerDay returns how many alerts a day the frequency asks for, or 0
// for an unknown value.
func (f Frequency) TimesPerDay() int {
	switch f {
	case FrequencyOnce:
		return 1
	case FrequencyTwice:
		return 2
	case FrequencyThrice:
		return 3
	case FrequencyFour:
		return 4
	}
	return 0
}

type Reminder struct {
	ID           string    `json:"id"`
	MedicineName string    `json:"medicineName"`
	Dosage       string    `json:"dosage"`
	Frequency    Frequency `json:"frequency"`
	// Time is a local time of day, "15:04".
	Time         string    `json:"time"`
	DurationDays int       `json:"duration"`
	Instructions string    `json:"instructions,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	IsActive     bool      `json:"isActive"`
}

// UnmarshalJSON also accepts the numeric ids and string durations written by
// older clients.
func (r *Reminder) UnmarshalJSON(data []byte) error {
	type plain Reminder
	aux := struct {
		*plain
		ID           json.RawMessage `json:"id"`
		DurationDays json.RawMessage `json:"duration"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	id, err := looseString(aux.ID)
	if err != nil {
		return fmt.Errorf("reminder id: %w", err)
	}
	days, err := looseInt(aux.DurationDays)
	if err != nil {
		return fmt.Errorf("reminder duration: %w", err)
	}
	r.ID = id
	r.DurationDays = days
	return nil
}
