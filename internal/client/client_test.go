package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/tart/internal/host/hosttest"
	"github.com/GriffinCanCode/tart/internal/infrastructure/config"
	"github.com/GriffinCanCode/tart/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tart/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/tart/internal/terminal"
	"github.com/GriffinCanCode/tart/internal/types"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func connect(t *testing.T, fake *hosttest.Host, mutate func(*config.Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Host.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	if mutate != nil {
		mutate(cfg)
	}

	c, err := Connect(context.Background(), Options{
		Config:  cfg,
		Metrics: monitoring.NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnectTracksCreatedSessions(t *testing.T) {
	fake := hosttest.New()
	c := connect(t, fake, nil)
	require.NoError(t, c.Start(context.Background()))

	title := "build"
	created, err := c.Sessions().Create(context.Background(), types.CreateRequest{
		Command: "make",
		Args:    []string{"test"},
		Title:   &title,
	})
	require.NoError(t, err)
	require.True(t, created.Success())

	assert.Eventually(t, func() bool {
		_, ok := c.Directory().Lookup(created.Value().ID)
		return ok
	}, waitFor, tick)

	found, _ := c.Directory().Lookup(created.Value().ID)
	assert.Equal(t, "build", found.DisplayName())
}

func TestConnectSynchronizer(t *testing.T) {
	fake := hosttest.New()
	fake.Echo = true
	fake.AddSession(types.Session{ID: "s1", Command: "zsh", Size: types.PtySize{Rows: 24, Cols: 80}})
	c := connect(t, fake, nil)

	sessions := fake.Sessions()
	ts := c.Synchronizer(sessions[0])
	require.NoError(t, ts.Mount(context.Background(), terminal.FixedViewport{Rows: 24, Cols: 80}))
	t.Cleanup(ts.Close)

	result, err := ts.Write(context.Background(), "echo hi")
	require.NoError(t, err)
	assert.True(t, result.Success())

	assert.Eventually(t, func() bool {
		return ts.Serialize() == "echo hi"
	}, waitFor, tick)
	assert.Equal(t, []string{"echo hi"}, fake.Writes("s1"))
}

func TestConnectBreaker(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
	}{
		{name: "enabled", enabled: true},
		{name: "disabled", enabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := connect(t, hosttest.New(), func(cfg *config.Config) {
				cfg.Breaker.Enabled = tt.enabled
			})

			if !tt.enabled {
				assert.Nil(t, c.Breaker())
				return
			}
			require.NotNil(t, c.Breaker())
			assert.Equal(t, "host", c.Breaker().Name())
			assert.Equal(t, resilience.StateClosed, c.Breaker().State())
		})
	}
}

func TestConnectFailure(t *testing.T) {
	srv := httptest.NewServer(hosttest.New())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	cfg := config.Default()
	cfg.Host.URL = url
	_, err := Connect(context.Background(), Options{Config: cfg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), url)
}

func TestNewOnInMemoryHost(t *testing.T) {
	fake := hosttest.New()
	fake.AddSession(types.Session{ID: "s1", Command: "zsh"})

	c := New(fake, Options{})
	t.Cleanup(func() { _ = c.Close() })

	assert.Nil(t, c.Breaker())
	assert.Equal(t, config.Default().Host, c.Config().Host)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Directory().Refresh(context.Background()))
	assert.Len(t, c.Directory().Sessions(), 1)

	ts := c.Synchronizer(types.Session{ID: "s1", Command: "zsh"})
	require.NoError(t, ts.Mount(context.Background(), terminal.ViewportFunc(func() (int, int, bool) {
		return 0, 0, false
	})))
	t.Cleanup(ts.Close)

	assert.Equal(t, terminal.Size{Rows: 24, Cols: 80}, ts.Size())
}

func TestCloseReleasesListener(t *testing.T) {
	fake := hosttest.New()
	c := New(fake, Options{})
	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, 1, fake.Listeners(hosttest.DefaultChannel))

	require.NoError(t, c.Close())
	assert.Equal(t, 0, fake.Listeners(hosttest.DefaultChannel))
}
