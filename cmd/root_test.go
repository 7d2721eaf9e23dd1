package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pql-agent/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "qualify", "navigate", "search", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "pql-agent", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestQualifyCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "threshold", "skip-research"} {
		assert.NotNil(t, qualifyCmd.Flags().Lookup(name), "qualify should have --%s flag", name)
	}
	assert.Equal(t, "false", qualifyCmd.Flags().Lookup("skip-research").DefValue)
}

func TestNavigateCommand_Flags(t *testing.T) {
	for _, name := range []string{"subject", "url", "sequential"} {
		assert.NotNil(t, navigateCmd.Flags().Lookup(name), "navigate should have --%s flag", name)
	}
}

func TestSearchCommand_Flags(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "5", flag.DefValue)
	assert.NotNil(t, searchCmd.Flags().Lookup("query"))
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.LLM.Provider = "anthropic"
	c.Anthropic.Key = "sk-ant-test"
	c.Anthropic.Model = "claude-haiku-4-5-20251001"
	c.Anthropic.MaxTokens = 256
	c.Bedrock.ModelID = "anthropic.claude-3-5-haiku-20241022-v1:0"
	c.Qualification.Threshold = 7
	c.Scrape.RequestTimeoutSecs = 1
	c.Scrape.MaxTextChars = 700
	c.Search.Limit = 5
	return c
}

func TestModelName(t *testing.T) {
	c := testConfig()
	assert.Equal(t, "claude-haiku-4-5-20251001", modelName(c))

	c.LLM.Provider = "bedrock"
	assert.Equal(t, "anthropic.claude-3-5-haiku-20241022-v1:0", modelName(c))
}

func TestInitStore_SQLite(t *testing.T) {
	c := testConfig()
	c.Store.DatabaseURL = t.TempDir() + "/pql.db"

	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.Migrate(context.Background()))
}

func TestInitStore_Supabase(t *testing.T) {
	c := testConfig()
	c.Store.Driver = "supabase"
	c.Supabase.URL = "https://example.supabase.co"
	c.Supabase.ServiceRoleKey = "service-key"

	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	assert.NoError(t, st.Close())
}

func TestInitStore_Unknown(t *testing.T) {
	c := testConfig()
	c.Store.Driver = "mongo"

	_, err := initStore(context.Background(), c)
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestInitCompleter_Anthropic(t *testing.T) {
	c := testConfig()
	c.Anthropic.BaseURL = "http://127.0.0.1:1"

	completer, err := initCompleter(context.Background(), c)
	require.NoError(t, err)
	assert.NotNil(t, completer)
}

func TestInitCompleter_Unknown(t *testing.T) {
	c := testConfig()
	c.LLM.Provider = "openai"

	_, err := initCompleter(context.Background(), c)
	assert.ErrorContains(t, err, "unsupported llm provider")
}

func TestInitGatherer_NoBrowserNoCache(t *testing.T) {
	c := testConfig()

	env := &appEnv{}
	env.initGatherer(c)
	defer env.Close()

	require.NotNil(t, env.Gatherer)
	assert.Nil(t, env.browser)
	assert.Nil(t, env.redis)

	// Without credentials search reports an error instead of failing.
	links := env.Gatherer.TopLinks(context.Background(), "acme", 3)
	assert.Empty(t, links.Links)
	assert.NotEmpty(t, links.Error)
}

func TestInitApp_SQLite(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	cfg = testConfig()
	cfg.Store.DatabaseURL = t.TempDir() + "/pql.db"

	env, err := initApp(context.Background(), "qualify")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Completer)
	assert.NotNil(t, env.Pipeline)
}

func TestInitApp_InvalidConfig(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	cfg = testConfig()
	cfg.Anthropic.Key = ""

	_, err := initApp(context.Background(), "serve")
	assert.ErrorContains(t, err, "anthropic.key is required")
}
