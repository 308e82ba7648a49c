// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/punchclock/api/schemas"
	"github.com/xkilldash9x/punchclock/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Store() config.StoreConfig {
	args := m.Called()
	return args.Get(0).(config.StoreConfig)
}

func (m *MockConfig) Watcher() config.WatcherConfig {
	args := m.Called()
	return args.Get(0).(config.WatcherConfig)
}

func (m *MockConfig) Alarm() config.AlarmConfig {
	args := m.Called()
	return args.Get(0).(config.AlarmConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Settings() config.SettingsConfig {
	args := m.Called()
	return args.Get(0).(config.SettingsConfig)
}

// --- Setters ---

func (m *MockConfig) SetStoreDriver(driver string) {
	m.Called(driver)
}

func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetWatcherMutationDebounce(d time.Duration) {
	m.Called(d)
}

// -- Store Mock --

// MockStore mocks the store.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStore) Set(ctx context.Context, key string, value []byte) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockStore) Remove(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *MockStore) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

// -- Notifier Mock --

// MockNotifier mocks the notify.Notifier interface and keeps what it was sent.
type MockNotifier struct {
	mock.Mock
	mu   sync.Mutex
	sent []schemas.Notification
}

func (m *MockNotifier) Notify(ctx context.Context, n schemas.Notification) (string, error) {
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

// Sent returns a copy of every notification passed to Notify.
func (m *MockNotifier) Sent() []schemas.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schemas.Notification(nil), m.sent...)
}

// -- Time Clock Mocks --

// MockEntryRecorder mocks the watcher.EntryRecorder interface.
type MockEntryRecorder struct {
	mock.Mock
}

func (m *MockEntryRecorder) Record(ctx context.Context, at time.Time, source schemas.EntrySource) ([]schemas.Entry, error) {
	args := m.Called(ctx, at, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Entry), args.Error(1)
}

// MockAlarmUpdater mocks the watcher.AlarmUpdater interface.
type MockAlarmUpdater struct {
	mock.Mock
}

func (m *MockAlarmUpdater) UpdateAlarm(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
