package agent_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/znerol74/call/internal/model/agent"
)

func TestSeedIsValid(t *testing.T) {
	for _, d := range agent.Seed() {
		require.NoError(t, d.Validate())
	}
}

func TestValidateRejectsDuplicateToolNames(t *testing.T) {
	d := agent.Seed()[0]
	d.Tools = append(d.Tools, agent.ToolDefinition{Name: "end_call", Description: "again"})
	assert.Error(t, d.Validate())
}

func TestValidateRejectsBadPhoneNumber(t *testing.T) {
	d := agent.Seed()[0]
	d.PhoneNumber = "030 123"
	assert.Error(t, d.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	d := agent.Seed()[0]
	c := d.Clone()
	c.Tools[0].Name = "changed"
	c.Tools[0].Parameters["type"] = "array"

	assert.Equal(t, "transfer_call", d.Tools[0].Name)
	assert.Equal(t, "object", d.Tools[0].Parameters["type"])
}

func TestMemoryStoreLookups(t *testing.T) {
	store := agent.NewMemoryStore(agent.Seed())

	got, ok := store.FindByPhoneNumber("+4930123456")
	require.True(t, ok)
	assert.Equal(t, "reception", got.ID)

	_, ok = store.FindByPhoneNumber("+15550000000")
	assert.False(t, ok)

	got, ok = store.FindByID("reception")
	require.True(t, ok)
	assert.Equal(t, []string{"transfer_call", "end_call", "get_weather"}, got.ToolNames())

	store.Replace(nil)
	assert.Empty(t, store.List())
	_, ok = store.FindByID("reception")
	assert.False(t, ok)
}

const agentsYAML = `agents:
  - id: support
    name: Support
    phone_number: "+4940111222"
    system_prompt: You help customers.
    greeting: Support here.
    language: en-US
    tools:
      - name: api_call
        description: Call an HTTP API.
        parameters:
          type: object
          properties:
            url:
              type: string
          required: [url]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	writeFile(t, path, agentsYAML)

	agents, err := agent.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "support", agents[0].ID)
	assert.Equal(t, "+4940111222", agents[0].PhoneNumber)
	require.Len(t, agents[0].Tools, 1)
	assert.Equal(t, "object", agents[0].Tools[0].Parameters["type"])
}

func TestLoadFileRejectsInvalidAgents(t *testing.T) {
	cases := map[string]string{
		"empty":          "agents: []\n",
		"missing prompt": "agents:\n  - id: a\n    name: A\n    greeting: hi\n",
		"duplicate id": "agents:\n" +
			"  - {id: a, name: A, system_prompt: p, greeting: hi}\n" +
			"  - {id: a, name: B, system_prompt: p, greeting: hi}\n",
		"shared number": "agents:\n" +
			"  - {id: a, name: A, phone_number: '+4940111222', system_prompt: p, greeting: hi}\n" +
			"  - {id: b, name: B, phone_number: '+4940111222', system_prompt: p, greeting: hi}\n",
		"not yaml": "agents: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "agents.yaml")
			writeFile(t, path, content)
			_, err := agent.LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestWatchReloadsStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	writeFile(t, path, agentsYAML)

	store := agent.NewMemoryStore(agent.Seed())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Watch(ctx, path, store, zap.NewNop()) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, agentsYAML)

	require.Eventually(t, func() bool {
		_, ok := store.FindByID("support")
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
