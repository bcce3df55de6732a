package agent

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Descriptor holds the immutable configuration of an automated agent: what it
// says first, how it is instructed and which tools it may call.
type Descriptor struct {
	ID           string           `json:"id" yaml:"id" validate:"required"`
	Name         string           `json:"name" yaml:"name" validate:"required"`
	PhoneNumber  string           `json:"phoneNumber,omitempty" yaml:"phone_number" validate:"omitempty,e164"`
	SystemPrompt string           `json:"-" yaml:"system_prompt" validate:"required"`
	Greeting     string           `json:"greeting" yaml:"greeting" validate:"required"`
	VoiceID      string           `json:"voiceId,omitempty" yaml:"voice_id"`
	Language     string           `json:"language,omitempty" yaml:"language"`
	Tools        []ToolDefinition `json:"tools,omitempty" yaml:"tools" validate:"unique=Name,dive"`
}

// ToolDefinition describes one callable action. Parameters is a JSON-schema
// object.
type ToolDefinition struct {
	Name        string         `json:"name" yaml:"name" validate:"required"`
	Description string         `json:"description" yaml:"description" validate:"required"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first configuration problem of d.
func (d Descriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid agent %q: %w", d.ID, err)
	}
	return nil
}

// ToolNames lists the names of the agent's tools in catalog order.
func (d Descriptor) ToolNames() []string {
	names := make([]string, 0, len(d.Tools))
	for _, t := range d.Tools {
		names = append(names, t.Name)
	}
	return names
}

// Clone returns a deep copy so a session can hold a descriptor that later
// store reloads cannot touch.
func (d Descriptor) Clone() Descriptor {
	out := d
	if d.Tools != nil {
		out.Tools = make([]ToolDefinition, len(d.Tools))
		for i, t := range d.Tools {
			out.Tools[i] = ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  cloneMap(t.Parameters),
			}
		}
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
