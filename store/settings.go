// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/danielhkuo/polly/models"
)

// Setting keys
const (
	SettingSiteName              = "site_name"
	SettingRegistrationEnabled   = "registration_enabled"
	SettingAnonymousPollCreation = "anonymous_poll_creation"
	SettingMaxOptionsPerPoll     = "max_options_per_poll"
	SettingClamAVEnabled         = "clamav_enabled"
	SettingChatNotifications     = "chat_notifications"
	SettingEmailNotifications    = "email_notifications"
)

type settingKind int

const (
	kindString settingKind = iota
	kindBool
	kindInt
)

type settingDef struct {
	kind     settingKind
	fallback string
}

var settingDefs = map[string]settingDef{
	SettingSiteName:              {kindString, "Polly"},
	SettingRegistrationEnabled:   {kindBool, "true"},
	SettingAnonymousPollCreation: {kindBool, "true"},
	SettingMaxOptionsPerPoll:     {kindInt, "50"},
	SettingClamAVEnabled:         {kindBool, "false"},
	SettingChatNotifications:     {kindBool, "true"},
	SettingEmailNotifications:    {kindBool, "true"},
}

// ValidateSetting checks that key is known and value parses as its type.
func ValidateSetting(key, value string) error {
	def, ok := settingDefs[key]
	if !ok {
		return fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
	switch def.kind {
	case kindBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%w: %s must be true or false", ErrInvalidSetting, key)
		}
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("%w: %s must be a positive integer", ErrInvalidSetting, key)
		}
	case kindString:
		if value == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidSetting, key)
		}
	}
	return nil
}

// Settings returns every known setting, stored values over defaults, sorted by key.
func (s *Store) Settings(ctx context.Context) ([]models.Setting, error) {
	var stored []models.Setting
	if err := s.sel(ctx, s.db, &stored, `SELECT key, value, updated_at FROM setting`); err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}

	byKey := make(map[string]models.Setting, len(stored))
	for _, st := range stored {
		byKey[st.Key] = st
	}

	settings := make([]models.Setting, 0, len(settingDefs))
	for key, def := range settingDefs {
		if st, ok := byKey[key]; ok {
			settings = append(settings, st)
			continue
		}
		settings = append(settings, models.Setting{Key: key, Value: def.fallback})
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
	return settings, nil
}

// Setting returns the value for key, falling back to its default.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	def, ok := settingDefs[key]
	if !ok {
		return "", fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}

	var value string
	err := s.get(ctx, s.db, &value, `SELECT value FROM setting WHERE key = ?`, key)
	if errors.Is(err, ErrNotFound) {
		return def.fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query setting: %w", err)
	}
	return value, nil
}

// SetSetting validates and upserts a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if err := ValidateSetting(key, value); err != nil {
		return err
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO setting (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, s.now())
	if err != nil {
		return fmt.Errorf("failed to store setting: %w", err)
	}
	return nil
}

// BoolSetting returns a boolean setting. Unreadable values yield the default.
func (s *Store) BoolSetting(ctx context.Context, key string) bool {
	value, err := s.Setting(ctx, key)
	if err == nil {
		if b, perr := strconv.ParseBool(value); perr == nil {
			return b
		}
	}
	b, _ := strconv.ParseBool(settingDefs[key].fallback)
	return b
}

// IntSetting returns an integer setting. Unreadable values yield the default.
func (s *Store) IntSetting(ctx context.Context, key string) int {
	value, err := s.Setting(ctx, key)
	if err == nil {
		if n, perr := strconv.Atoi(value); perr == nil {
			return n
		}
	}
	n, _ := strconv.Atoi(settingDefs[key].fallback)
	return n
}
