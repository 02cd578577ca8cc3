package factory

import (
	"time"

	"github.com/apexfest/checkin/internal/dependencies/mocks"
	"github.com/apexfest/checkin/internal/metrics"
	"github.com/apexfest/checkin/internal/services/auth"
	"github.com/apexfest/checkin/internal/services/ledger"
	"github.com/apexfest/checkin/internal/storage/memory"
	"github.com/apexfest/checkin/internal/testutil"
)

// TestAdminPassword is the admin password accepted by a TestApp
const TestAdminPassword = "festival-admin"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom

	// Notifications records everything published to the external sink
	Notifications *testutil.RecordingPublisher
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	recorder := &testutil.RecordingPublisher{}

	hash, err := auth.HashPassword(TestAdminPassword)
	if err != nil {
		panic(err)
	}

	authCfg := auth.Config{
		Secret:            "test-secret",
		SessionDuration:   auth.DefaultConfig().SessionDuration,
		AdminPasswordHash: hash,
	}

	app := newWithDependencies(dependencies{
		storage:  store,
		clock:    mockClock,
		random:   mockRandom,
		external: recorder,
		metrics:  metrics.NewManager(),
		auth:     authCfg,
		ledger:   ledger.DefaultConfig(),
		logger:   testutil.NopLogger(),
	})

	return &TestApp{
		App:           app,
		MockClock:     mockClock,
		MockRandom:    mockRandom,
		Notifications: recorder,
	}
}
