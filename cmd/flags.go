package cmd

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/marcus/offsync/internal/conflict"
	"github.com/marcus/offsync/internal/models"
)

// priorityValue is a pflag.Value accepting high, medium or low.
type priorityValue struct {
	p models.Priority
}

var _ pflag.Value = (*priorityValue)(nil)

func newPriorityValue(def models.Priority) *priorityValue {
	return &priorityValue{p: def}
}

func (v *priorityValue) String() string { return string(v.p) }
func (v *priorityValue) Type() string   { return "priority" }

func (v *priorityValue) Set(s string) error {
	p, err := models.ParsePriority(s)
	if err != nil {
		return err
	}
	v.p = p
	return nil
}

// resolutionValue is a pflag.Value accepting server or client.
type resolutionValue struct {
	r models.ConflictResolution
}

var _ pflag.Value = (*resolutionValue)(nil)

func (v *resolutionValue) String() string { return string(v.r) }
func (v *resolutionValue) Type() string   { return "server|client" }

func (v *resolutionValue) Set(s string) error {
	r, err := parseResolution(s)
	if err != nil {
		return err
	}
	v.r = r
	return nil
}

func parseResolution(s string) (models.ConflictResolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server", "theirs", "remote":
		return models.ResolutionServer, nil
	case "client", "mine", "local":
		return models.ResolutionClient, nil
	}
	return "", errInvalidResolution(s)
}

// strategyValue is a pflag.Value accepting a conflict strategy name.
type strategyValue struct {
	s conflict.Strategy
}

var _ pflag.Value = (*strategyValue)(nil)

func (v *strategyValue) String() string { return string(v.s) }
func (v *strategyValue) Type() string   { return "strategy" }

func (v *strategyValue) Set(s string) error {
	st, err := conflict.ParseStrategy(s)
	if err != nil {
		return err
	}
	v.s = st
	return nil
}
