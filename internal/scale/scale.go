// Package scale turns scale-out requests into signal tokens of the form
// "<capacity_units>#<expires_at>".
package scale

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/semaphore/internal/config"
)

// TimeLayout is the expiry encoding: local wall clock, second precision,
// no zone suffix.
const TimeLayout = "2006-01-02T15:04:05"

// Delimiter separates the capacity from the expiry in a token.
const Delimiter = "#"

// Mode selects how a request names its capacity.
type Mode string

const (
	// ModeDirect takes an explicit positive size.
	ModeDirect Mode = config.ModeDirect
	// ModeTiered takes a tier name from the tier table.
	ModeTiered Mode = config.ModeTiered
)

// maxHours keeps now+hours representable as a time.Duration.
var maxHours = float64(math.MaxInt64/int64(time.Hour)) - 1

// Request is a scale-out request as received from a caller. Nil fields and
// an empty Level fall back to the configured defaults.
type Request struct {
	Size  *int
	Level string
	Hours *float64
}

// Signal is one encoded capacity-adjustment instruction.
type Signal struct {
	CapacityUnits int
	Level         string // resolved tier; empty in direct mode
	Hours         float64
	ExpiresAt     time.Time
	Token         string
}

// ExpiresAtString renders ExpiresAt in TimeLayout.
func (s Signal) ExpiresAtString() string {
	return s.ExpiresAt.Format(TimeLayout)
}

// ValidationError reports a request the caller must fix.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scale: invalid %s: %s", e.Field, e.Message)
}

// Encoder validates requests and builds Signals. The zero value is not
// usable; build one with NewEncoder.
type Encoder struct {
	Mode          Mode
	Tiers         map[string]int
	DefaultLevel  string
	FallbackLevel string
	DefaultSize   int
	MaxSize       int
	DefaultHours  float64
	// Now returns the encoding time. Defaults to time.Now.
	Now func() time.Time
}

// NewEncoder builds an Encoder from validated config.
func NewEncoder(cfg config.ScaleConfig) *Encoder {
	tiers := make(map[string]int, len(cfg.Tiers))
	for name, units := range cfg.Tiers {
		tiers[strings.ToUpper(name)] = units
	}
	return &Encoder{
		Mode:          Mode(cfg.Mode),
		Tiers:         tiers,
		DefaultLevel:  strings.ToUpper(cfg.DefaultLevel),
		FallbackLevel: strings.ToUpper(cfg.FallbackLevel),
		DefaultSize:   cfg.DefaultSize,
		MaxSize:       cfg.MaxSize,
		DefaultHours:  cfg.DefaultHours,
		Now:           time.Now,
	}
}

// TierNames returns the configured tier names sorted by capacity, largest first.
func (e *Encoder) TierNames() []string {
	names := make([]string, 0, len(e.Tiers))
	for name := range e.Tiers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if e.Tiers[names[i]] != e.Tiers[names[j]] {
			return e.Tiers[names[i]] > e.Tiers[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// Encode validates req and returns its Signal.
func (e *Encoder) Encode(req Request) (Signal, error) {
	units, level, err := e.capacity(req)
	if err != nil {
		return Signal{}, err
	}

	hours := e.DefaultHours
	if req.Hours != nil {
		hours = *req.Hours
	}
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return Signal{}, &ValidationError{Field: "hours_to_expire", Message: "must be a positive number"}
	}
	if hours > maxHours {
		return Signal{}, &ValidationError{Field: "hours_to_expire", Message: "is too large"}
	}

	nowFn := e.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()
	// Tokens carry whole seconds; round up so the expiry stays after now.
	expires := now.Add(time.Duration(hours * float64(time.Hour))).Truncate(time.Second)
	if !expires.After(now) {
		expires = expires.Add(time.Second)
	}

	return Signal{
		CapacityUnits: units,
		Level:         level,
		Hours:         hours,
		ExpiresAt:     expires,
		Token:         FormatToken(units, expires),
	}, nil
}

// capacity resolves the capacity units for req under the encoder's mode.
func (e *Encoder) capacity(req Request) (int, string, error) {
	switch e.Mode {
	case ModeDirect:
		if req.Level != "" {
			return 0, "", &ValidationError{Field: "scale_level", Message: "not accepted in direct mode; use scale_size"}
		}
		size := e.DefaultSize
		if req.Size != nil {
			size = *req.Size
		}
		if size <= 0 {
			return 0, "", &ValidationError{Field: "scale_size", Message: "must be a positive integer"}
		}
		if e.MaxSize > 0 && size > e.MaxSize {
			return 0, "", &ValidationError{Field: "scale_size", Message: fmt.Sprintf("must not exceed %d", e.MaxSize)}
		}
		return size, "", nil

	case ModeTiered:
		if req.Size != nil {
			return 0, "", &ValidationError{Field: "scale_size", Message: "not accepted in tiered mode; use scale_level"}
		}
		if len(e.Tiers) == 0 {
			return 0, "", &ValidationError{Field: "scale_level", Message: "no tiers configured"}
		}
		level := strings.ToUpper(strings.TrimSpace(req.Level))
		if level == "" {
			level = e.DefaultLevel
		}
		units, ok := e.Tiers[level]
		if !ok {
			level = e.FallbackLevel
			units, ok = e.Tiers[level]
			if !ok {
				return 0, "", &ValidationError{Field: "scale_level", Message: "unknown tier and no fallback tier configured"}
			}
		}
		return units, level, nil

	default:
		return 0, "", fmt.Errorf("scale: unknown mode %q", e.Mode)
	}
}

// FormatToken builds the wire token for units and expiry.
func FormatToken(units int, expiresAt time.Time) string {
	return strconv.Itoa(units) + Delimiter + expiresAt.Format(TimeLayout)
}

// ParseToken splits a token back into capacity units and expiry, reading
// the expiry in the local time zone.
func ParseToken(token string) (int, time.Time, error) {
	unitsStr, expiresStr, ok := strings.Cut(token, Delimiter)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("scale: token %q: missing %q", token, Delimiter)
	}
	units, err := strconv.Atoi(unitsStr)
	if err != nil || units <= 0 {
		return 0, time.Time{}, fmt.Errorf("scale: token %q: bad capacity %q", token, unitsStr)
	}
	expires, err := time.ParseInLocation(TimeLayout, expiresStr, time.Local)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("scale: token %q: bad expiry: %w", token, err)
	}
	return units, expires, nil
}
