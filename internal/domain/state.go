package domain

import (
	"fmt"
	"maps"
	"reflect"
	"time"
)

// Key represents a type-safe generic key for accessing values in State.
// The type parameter T ensures compile-time type safety when getting and
// setting values, eliminating the need for runtime type assertions.
type Key[T any] struct{ name string }

// NewKey creates a new Key with the specified name and type.
// This function is provided for creating keys outside of the domain package.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Predefined state keys used throughout a recomputation run.
// Each key is strongly typed to ensure type safety at compile time.
var (
	// KeyTopic stores the topic being aggregated, including the
	// configuration version in force for this run.
	KeyTopic = Key[Topic]{"topic"}

	// KeyStances stores the latest stance per participant, before
	// moderation filtering.
	KeyStances = Key[[]Stance]{"stances"}

	// KeyEligibleStances stores the stances that survived the moderation
	// gate.
	KeyEligibleStances = Key[[]Stance]{"eligible_stances"}

	// KeyVotes stores the weighted votes produced by the composer, already
	// cohort-filtered and renormalized.
	KeyVotes = Key[[]WeightedVote]{"votes"}

	// KeyCohort stores the cohort this run aggregates over.
	KeyCohort = Key[Cohort]{"cohort"}

	// KeyExpertCount stores the number of participants qualifying for the
	// expert cohort, computed by the composer for every run.
	KeyExpertCount = Key[int]{"expert_count"}

	// KeyResult stores the aggregation result as it moves through the
	// threshold gate and classifier.
	KeyResult = Key[*AggregateResult]{"result"}

	// KeyAuditFlags accumulates degradation flags raised during the run,
	// recorded on the recomputation audit entry.
	KeyAuditFlags = Key[[]string]{"audit_flags"}

	// Run context keys carried across the pipeline for observability.

	// KeyRunID stores a unique identifier for this recomputation run.
	KeyRunID = Key[string]{"run.id"}

	// KeyRunTrigger stores what caused the run (e.g. "stance_submitted",
	// "moderation_change", "replay").
	KeyRunTrigger = Key[string]{"run.trigger"}

	// KeyComputedAt stores the logical timestamp of the run. Replays set it
	// from the audit log so recomputed results match the originals.
	KeyComputedAt = Key[time.Time]{"run.computed_at"}
)

// deepCopyValue creates a deep copy of a value to ensure true immutability.
// It handles slices, maps, and other reference types that would otherwise
// allow external modification of State data.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}

	// time.Time is immutable and can be returned directly.
	if val, ok := value.(time.Time); ok {
		return val
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		newSlice := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
		for i := 0; i < v.Len(); i++ {
			newSlice.Index(i).Set(reflect.ValueOf(deepCopyValue(v.Index(i).Interface())))
		}
		return newSlice.Interface()

	case reflect.Map:
		newMap := reflect.MakeMap(v.Type())
		for _, key := range v.MapKeys() {
			copiedKey := deepCopyValue(key.Interface())
			copiedValue := deepCopyValue(v.MapIndex(key).Interface())
			newMap.SetMapIndex(reflect.ValueOf(copiedKey), reflect.ValueOf(copiedValue))
		}
		return newMap.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return v.Interface()
		}
		newPtr := reflect.New(v.Elem().Type())
		newPtr.Elem().Set(reflect.ValueOf(deepCopyValue(v.Elem().Interface())))
		return newPtr.Interface()

	case reflect.Struct:
		// This performs a shallow copy for unexported fields but deep copies
		// exported fields.
		newStruct := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if newStruct.Field(i).CanSet() {
				newStruct.Field(i).Set(reflect.ValueOf(deepCopyValue(v.Field(i).Interface())))
			}
		}
		return newStruct.Interface()

	default:
		// Primitive types are returned as-is since they are copied by value.
		return value
	}
}

// State represents an immutable collection of run data that flows through
// the aggregation pipeline. It uses copy-on-write semantics to ensure
// thread-safety and prevent unintended mutations. State is the primary data
// structure for passing information between Units, and its immutability is
// one half of the determinism contract behind audit replay.
type State struct {
	// data holds the key-value pairs that make up the state.
	// It is unexported to maintain immutability guarantees.
	data map[string]any
}

// NewState creates a new empty State.
// The returned State is ready to use and can be safely shared across
// goroutines.
func NewState() State {
	return State{
		data: make(map[string]any),
	}
}

// Get retrieves a value from the State with compile-time type safety.
// It returns the value and a boolean indicating whether the key exists
// and contains a value of the correct type. The returned value is a deep
// copy to maintain immutability.
//
// Example:
//
//	topic, ok := Get(state, KeyTopic)
//	if !ok {
//	    // handle missing value
//	}
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}

	copied := deepCopyValue(value)
	val, ok := copied.(T)
	return val, ok
}

// With creates a new State with the specified key-value pair added or
// updated. It implements copy-on-write semantics, returning a new State
// instance while leaving the original unchanged.
func With[T any](s State, key Key[T], value T) State {
	newData := maps.Clone(s.data)
	newData[key.name] = deepCopyValue(value)
	return State{data: newData}
}

// WithMultiple creates a new State with multiple key-value pairs added or
// updated. It is more efficient than chaining multiple With calls as it
// performs a single clone operation.
func (s State) WithMultiple(updates map[string]any) State {
	newData := maps.Clone(s.data)
	for k, v := range updates {
		newData[k] = deepCopyValue(v)
	}
	return State{data: newData}
}

// Keys returns all keys present in the State.
// The returned slice is safe to modify without affecting the original State.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// String returns a string representation of the State for debugging purposes.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.data)
}

// RunContext contains metadata about the current recomputation run that
// flows through the State during pipeline execution.
type RunContext struct {
	// RunID is a unique identifier for this recomputation run.
	RunID string

	// Trigger describes what caused the run.
	Trigger string

	// ComputedAt is the logical timestamp of the run.
	ComputedAt time.Time
}

// WithRunContext creates a new State with run metadata included.
// It should be called once at the start of pipeline execution.
func (s State) WithRunContext(rc RunContext) State {
	return s.WithMultiple(map[string]any{
		KeyRunID.name:      rc.RunID,
		KeyRunTrigger.name: rc.Trigger,
		KeyComputedAt.name: rc.ComputedAt,
	})
}

// GetRunContext extracts run metadata from the State. It returns the run
// context and a boolean indicating whether all required fields are present.
func (s State) GetRunContext() (RunContext, bool) {
	runID, ok1 := Get(s, KeyRunID)
	trigger, ok2 := Get(s, KeyRunTrigger)
	computedAt, ok3 := Get(s, KeyComputedAt)

	if !ok1 || !ok2 || !ok3 {
		return RunContext{}, false
	}

	return RunContext{
		RunID:      runID,
		Trigger:    trigger,
		ComputedAt: computedAt,
	}, true
}

// AddAuditFlag returns a new State with flag appended to the run's audit
// flags, skipping duplicates.
func (s State) AddAuditFlag(flag string) State {
	flags, _ := Get(s, KeyAuditFlags)
	for _, f := range flags {
		if f == flag {
			return s
		}
	}
	return With(s, KeyAuditFlags, append(flags, flag))
}
