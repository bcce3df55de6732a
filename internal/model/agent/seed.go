package agent

// Seed provides the default agent used when no agents file is configured.
func Seed() []Descriptor {
	return []Descriptor{
		{
			ID:          "reception",
			Name:        "Reception",
			PhoneNumber: "+4930123456",
			SystemPrompt: "You are the friendly phone receptionist of a small company. " +
				"Keep answers short and suitable for speech. " +
				"Transfer the caller when they ask for a human and end the call when they say goodbye.",
			Greeting: "Hello, thanks for calling. How can I help you today?",
			VoiceID:  "alloy",
			Language: "de-DE",
			Tools: []ToolDefinition{
				{
					Name:        "transfer_call",
					Description: "Transfer the caller to a human colleague.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"phone_number": map[string]any{
								"type":        "string",
								"description": "Number to transfer to in E.164 format",
							},
						},
						"required": []any{"phone_number"},
					},
				},
				{
					Name:        "end_call",
					Description: "Hang up once the conversation is over.",
					Parameters: map[string]any{
						"type":       "object",
						"properties": map[string]any{},
					},
				},
				{
					Name:        "get_weather",
					Description: "Look up the current weather for a city.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"location": map[string]any{
								"type":        "string",
								"description": "City name",
							},
						},
						"required": []any{"location"},
					},
				},
			},
		},
	}
}
