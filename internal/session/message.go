package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/estatepost/internal/workflow"
	"github.com/mitchellh/mapstructure"
)

// Inbound message types.
const (
	MessageInitialInput = "initial_input"
	MessageDetailsInput = "details_input"
)

var (
	// ErrUnknownMessage is returned for a message type the session does not handle.
	ErrUnknownMessage = errors.New("session: unknown message type")
	// ErrEmptyInput is returned for a seed message without text.
	ErrEmptyInput = errors.New("session: user_input is required")
)

// Message is one client frame.
type Message struct {
	Type      string         `json:"type"`
	UserInput string         `json:"user_input,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Validate rejects messages the session cannot act on.
func (m Message) Validate() error {
	switch m.Type {
	case MessageInitialInput:
		if strings.TrimSpace(m.UserInput) == "" {
			return ErrEmptyInput
		}
	case MessageDetailsInput:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
	return nil
}

type detailsPayload struct {
	Location *string  `mapstructure:"location"`
	Price    *string  `mapstructure:"price"`
	Bedrooms *string  `mapstructure:"bedrooms"`
	Features []string `mapstructure:"features"`
}

// DecodeDetails converts a loosely typed details object into workflow
// details. Numbers are accepted for price and bedrooms; features may be a
// list or a comma-separated string.
func DecodeDetails(raw map[string]any) (workflow.Details, error) {
	var p detailsPayload
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return workflow.Details{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return workflow.Details{}, fmt.Errorf("decode details: %w", err)
	}

	d := workflow.Details{
		Location: trimmed(p.Location),
		Price:    trimmed(p.Price),
		Bedrooms: trimmed(p.Bedrooms),
	}
	if p.Features != nil {
		d.Features = []string{}
		for _, f := range p.Features {
			if f = strings.TrimSpace(f); f != "" {
				d.Features = append(d.Features, f)
			}
		}
	}
	return d, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	return &s
}
