// Package tools resolves tool calls emitted during generation into textual
// results. Failures never escape as errors; they become the result text so the
// conversation can react to them.
package tools

// Kind identifies a built-in tool implementation.
type Kind int

const (
	// KindUnimplemented is a catalog entry without a built-in behind it.
	KindUnimplemented Kind = iota
	KindTransferCall
	KindEndCall
	KindAPICall
	KindWeather
)

// Built-in tool names.
const (
	NameTransferCall = "transfer_call"
	NameEndCall      = "end_call"
	NameAPICall      = "api_call"
	NameWeather      = "get_weather"
)

// KindOf maps a tool name to its built-in by exact match.
func KindOf(name string) Kind {
	switch name {
	case NameTransferCall:
		return KindTransferCall
	case NameEndCall:
		return KindEndCall
	case NameAPICall:
		return KindAPICall
	case NameWeather:
		return KindWeather
	default:
		return KindUnimplemented
	}
}

func (k Kind) String() string {
	switch k {
	case KindTransferCall:
		return NameTransferCall
	case KindEndCall:
		return NameEndCall
	case KindAPICall:
		return NameAPICall
	case KindWeather:
		return NameWeather
	default:
		return "unimplemented"
	}
}

// Outcome is the lifecycle effect a successful tool has on its session.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeTransferred
	OutcomeEnded
)
