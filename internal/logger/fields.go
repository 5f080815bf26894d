package logger

import (
	"time"

	"go.uber.org/zap"
)

// String creates a string field.
func String(key, val string) Field { return zap.String(key, val) }

// Int creates an int field.
func Int(key string, val int) Field { return zap.Int(key, val) }

// Int64 creates an int64 field.
func Int64(key string, val int64) Field { return zap.Int64(key, val) }

// Bool creates a bool field.
func Bool(key string, val bool) Field { return zap.Bool(key, val) }

// Duration creates a duration field.
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }

// Time creates a time field.
func Time(key string, val time.Time) Field { return zap.Time(key, val) }

// Error creates an error field with the key "error".
func Error(err error) Field { return zap.Error(err) }

// Any creates a field that can hold any value.
func Any(key string, val any) Field { return zap.Any(key, val) }

// Strings creates a string slice field.
func Strings(key string, val []string) Field { return zap.Strings(key, val) }

// Domain fields. Keys are shared with the metrics labels and event payloads
// so log queries line up with dashboards.

// PoolID tags an entry with the account_survey_id of a link pool.
func PoolID(id string) Field { return zap.String("account_survey_id", id) }

// Account tags an entry with the survey platform account.
func Account(account string) Field { return zap.String("account", account) }

// SurveyID tags an entry with the survey id.
func SurveyID(id string) Field { return zap.String("survey_id", id) }

// ParticipantID tags an entry with the participant id.
func ParticipantID(id string) Field { return zap.String("participant_id", id) }

// CorrelationID tags an entry with the correlation id of a request or event.
func CorrelationID(id string) Field { return zap.String("correlation_id", id) }
