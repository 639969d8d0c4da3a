package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// OrganizationSettings is the single typed settings document. Every recognised key
// is a field here; unknown keys are rejected on decode.
type OrganizationSettings struct {
	General       GeneralSettings      `json:"general"`
	Timesheets    TimesheetSettings    `json:"timesheets"`
	PTO           PTOSettings          `json:"pto"`
	Notifications NotificationSettings `json:"notifications"`
	AI            AISettings           `json:"ai"`
}

type GeneralSettings struct {
	// CompanyName defaults to "Stride".
	CompanyName string `json:"companyName"`
	// Timezone is an IANA zone name; defaults to "UTC".
	Timezone string `json:"timezone"`
}

type TimesheetSettings struct {
	// RequireApproval defaults to true. When false, submitted weeks are approved immediately.
	RequireApproval bool `json:"requireApproval"`
	// MaxHoursPerDay caps a single day's entry; defaults to 12, allowed 1-24.
	MaxHoursPerDay float64 `json:"maxHoursPerDay"`
}

type PTOSettings struct {
	// AnnualAllowanceDays is the paid allowance per calendar year; defaults to 20, allowed 0-365.
	AnnualAllowanceDays int `json:"annualAllowanceDays"`
}

type NotificationSettings struct {
	// All default to true.
	EmailOnTimesheetReview  bool `json:"emailOnTimesheetReview"`
	EmailOnPTODecision      bool `json:"emailOnPtoDecision"`
	WeeklyTimesheetReminder bool `json:"weeklyTimesheetReminder"`
}

type AISettings struct {
	// Enabled defaults to false. The provider must also be configured.
	Enabled bool `json:"enabled"`
	// Model overrides the deployment's default model when set.
	Model string `json:"model,omitempty"`
}

func DefaultSettings() OrganizationSettings {
	return OrganizationSettings{
		General: GeneralSettings{CompanyName: "Stride", Timezone: "UTC"},
		Timesheets: TimesheetSettings{
			RequireApproval: true,
			MaxHoursPerDay:  12,
		},
		PTO: PTOSettings{AnnualAllowanceDays: 20},
		Notifications: NotificationSettings{
			EmailOnTimesheetReview:  true,
			EmailOnPTODecision:      true,
			WeeklyTimesheetReminder: true,
		},
	}
}

// SettingsError names the first invalid field.
type SettingsError struct {
	Field   string
	Message string
}

func (e *SettingsError) Error() string { return e.Field + " " + e.Message }

func (s OrganizationSettings) Validate() error {
	name := strings.TrimSpace(s.General.CompanyName)
	if name == "" {
		return &SettingsError{Field: "general.companyName", Message: "is required"}
	}
	if len(name) > 100 {
		return &SettingsError{Field: "general.companyName", Message: "must be at most 100 characters"}
	}
	if _, err := time.LoadLocation(s.General.Timezone); err != nil || s.General.Timezone == "" {
		return &SettingsError{Field: "general.timezone", Message: "must be a valid IANA time zone"}
	}
	if s.Timesheets.MaxHoursPerDay < 1 || s.Timesheets.MaxHoursPerDay > 24 {
		return &SettingsError{Field: "timesheets.maxHoursPerDay", Message: "must be between 1 and 24"}
	}
	if s.PTO.AnnualAllowanceDays < 0 || s.PTO.AnnualAllowanceDays > 365 {
		return &SettingsError{Field: "pto.annualAllowanceDays", Message: "must be between 0 and 365"}
	}
	if len(s.AI.Model) > 100 {
		return &SettingsError{Field: "ai.model", Message: "must be at most 100 characters"}
	}
	return nil
}

// DecodeSettings overlays the JSON document in r onto base. Sections and keys not
// present keep base's values.
func DecodeSettings(r io.Reader, base OrganizationSettings) (OrganizationSettings, error) {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	out := base
	if err := decoder.Decode(&out); err != nil {
		if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			return base, fmt.Errorf("settings contains unknown field %s", field)
		}
		if errors.Is(err, io.EOF) {
			return base, errors.New("settings body is empty")
		}
		return base, fmt.Errorf("settings is not valid JSON: %w", err)
	}
	return out, nil
}

// PublicSettings is the subset every signed-in role may read.
type PublicSettings struct {
	CompanyName         string  `json:"companyName"`
	Timezone            string  `json:"timezone"`
	RequireApproval     bool    `json:"requireTimesheetApproval"`
	MaxHoursPerDay      float64 `json:"maxHoursPerDay"`
	AnnualAllowanceDays int     `json:"annualAllowanceDays"`
	AIEnabled           bool    `json:"aiEnabled"`
}

func (s OrganizationSettings) Public() PublicSettings {
	return PublicSettings{
		CompanyName:         s.General.CompanyName,
		Timezone:            s.General.Timezone,
		RequireApproval:     s.Timesheets.RequireApproval,
		MaxHoursPerDay:      s.Timesheets.MaxHoursPerDay,
		AnnualAllowanceDays: s.PTO.AnnualAllowanceDays,
		AIEnabled:           s.AI.Enabled,
	}
}

func decodeStoredSettings(raw []byte) (OrganizationSettings, error) {
	settings := DefaultSettings()
	if len(bytes.TrimSpace(raw)) == 0 {
		return settings, nil
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return DefaultSettings(), fmt.Errorf("decode stored settings: %w", err)
	}
	return settings, nil
}
