package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/events"
	"github.com/flowmill/flowmill/pkg/storage"
	"github.com/flowmill/flowmill/pkg/types"
)

type countingRunner struct {
	runs        atomic.Int32
	disposition Disposition
}

func (r *countingRunner) Run(config *document.ItemCollection) (*document.ItemCollection, Disposition) {
	r.runs.Add(1)
	_ = config.ReplaceItemValue("lastrun", time.Now().UTC())
	return config, r.disposition
}

// faultyStore fails Save on demand while delegating everything else.
type faultyStore struct {
	storage.DocumentStore
	failSave atomic.Bool
}

func (s *faultyStore) Save(doc *document.ItemCollection) (*document.ItemCollection, error) {
	if s.failSave.Load() {
		return nil, errors.New("disk full")
	}
	return s.DocumentStore.Save(doc)
}

func newTestService(t *testing.T) (*Service, storage.DocumentStore) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	service := NewService(store, events.NewBroker(), 100)
	t.Cleanup(service.StopAll)
	return service, store
}

func newConfig(t *testing.T, definition, class string) *document.ItemCollection {
	t.Helper()
	config := document.New()
	config.SetType(types.TypeScheduler)
	require.NoError(t, config.SetItemValue("txtname", "test scheduler"))
	require.NoError(t, config.SetItemValue(ItemDefinition, definition))
	require.NoError(t, config.SetItemValue(ItemClass, class))
	return config
}

func TestStartArmsTimer(t *testing.T) {
	service, _ := newTestService(t)
	require.NoError(t, service.RegisterRunner("demo", &countingRunner{disposition: Ok()}))

	config, err := service.Start(newConfig(t, "second=0\nminute=30\nhour=14", "demo"))
	require.NoError(t, err)

	assert.NotEmpty(t, config.UniqueID())
	assert.True(t, config.GetItemValueBoolean(ItemEnabled))
	assert.True(t, config.HasItem(ItemNextTimeout))

	next, ok := service.FindTimer(config.UniqueID())
	require.True(t, ok)
	assert.True(t, next.After(time.Now()))

	logLines := config.GetItemValueStringList(ItemLog)
	require.NotEmpty(t, logLines)
	assert.Contains(t, logLines[len(logLines)-1], "Started:")
}

func TestStartRejectsBrokenDefinition(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.Start(newConfig(t, "minute=sixty", "demo"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.CodeSchedulerError))
}

func TestStartFailedSaveLeavesNoTimer(t *testing.T) {
	backing, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { backing.Close() })
	store := &faultyStore{DocumentStore: backing}

	service := NewService(store, events.NewBroker(), 100)
	t.Cleanup(service.StopAll)
	require.NoError(t, service.RegisterRunner("demo", &countingRunner{disposition: Ok()}))

	config, err := store.Save(newConfig(t, "minute=30", "demo"))
	require.NoError(t, err)
	id := config.UniqueID()

	store.failSave.Store(true)
	_, err = service.Start(config)
	require.Error(t, err)

	_, ok := service.FindTimer(id)
	assert.False(t, ok)

	// a running timer survives a failed restart
	store.failSave.Store(false)
	config, err = service.Start(config)
	require.NoError(t, err)

	store.failSave.Store(true)
	_, err = service.Start(config)
	require.Error(t, err)
	_, ok = service.FindTimer(id)
	assert.True(t, ok)
}

func TestStartTwiceKeepsSingleTimer(t *testing.T) {
	service, _ := newTestService(t)
	require.NoError(t, service.RegisterRunner("demo", &countingRunner{disposition: Ok()}))

	config, err := service.Start(newConfig(t, "minute=30", "demo"))
	require.NoError(t, err)
	id := config.UniqueID()

	config, err = service.Start(config)
	require.NoError(t, err)
	require.Equal(t, id, config.UniqueID())

	service.mu.Lock()
	live := len(service.timers)
	service.mu.Unlock()
	assert.Equal(t, 1, live)

	_, ok := service.FindTimer(id)
	assert.True(t, ok)
}

func TestStopDisarmsTimer(t *testing.T) {
	service, _ := newTestService(t)
	require.NoError(t, service.RegisterRunner("demo", &countingRunner{disposition: Ok()}))

	config, err := service.Start(newConfig(t, "minute=30", "demo"))
	require.NoError(t, err)

	config, err = service.Stop(config)
	require.NoError(t, err)

	assert.False(t, config.GetItemValueBoolean(ItemEnabled))
	assert.False(t, config.HasItem(ItemNextTimeout))
	_, ok := service.FindTimer(config.UniqueID())
	assert.False(t, ok)

	logLines := config.GetItemValueStringList(ItemLog)
	assert.Contains(t, logLines[len(logLines)-1], "Stopped:")
}

func TestTimerFiresRunner(t *testing.T) {
	service, store := newTestService(t)
	runner := &countingRunner{disposition: Ok()}
	require.NoError(t, service.RegisterRunner("demo", runner))

	// fires every second
	config, err := service.Start(newConfig(t, "second=*", "demo"))
	require.NoError(t, err)
	id := config.UniqueID()

	require.Eventually(t, func() bool {
		return runner.runs.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)

	// the returned configuration was persisted with a Finished log line
	require.Eventually(t, func() bool {
		persisted, err := store.Load(id)
		if err != nil || !persisted.HasItem("lastrun") {
			return false
		}
		logLines := persisted.GetItemValueStringList(ItemLog)
		for _, line := range logLines {
			if len(line) > 9 && line[:9] == "Finished:" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	// the timer stays armed after an Ok disposition
	_, ok := service.FindTimer(id)
	assert.True(t, ok)
}

func TestStopDispositionCancelsTimer(t *testing.T) {
	service, store := newTestService(t)
	runner := &countingRunner{disposition: Stop(errors.New("give up"))}
	require.NoError(t, service.RegisterRunner("demo", runner))

	config, err := service.Start(newConfig(t, "second=*", "demo"))
	require.NoError(t, err)
	id := config.UniqueID()

	require.Eventually(t, func() bool {
		_, ok := service.FindTimer(id)
		return !ok
	}, 5*time.Second, 50*time.Millisecond)

	assert.EqualValues(t, 1, runner.runs.Load())

	persisted, err := store.Load(id)
	require.NoError(t, err)
	assert.False(t, persisted.GetItemValueBoolean(ItemEnabled))
	assert.Equal(t, "give up", persisted.GetItemValueString(ItemErrorMessage))

	logLines := persisted.GetItemValueStringList(ItemLog)
	require.NotEmpty(t, logLines)
	assert.Contains(t, logLines[len(logLines)-1], "Error: give up")
}

func TestUnknownRunnerStopsTimer(t *testing.T) {
	service, store := newTestService(t)

	config, err := service.Start(newConfig(t, "second=*", "nosuch"))
	require.NoError(t, err)
	id := config.UniqueID()

	require.Eventually(t, func() bool {
		_, ok := service.FindTimer(id)
		return !ok
	}, 5*time.Second, 50*time.Millisecond)

	persisted, err := store.Load(id)
	require.NoError(t, err)
	assert.Contains(t, persisted.GetItemValueString(ItemErrorMessage), "unknown scheduler implementation")
}

func TestStartAll(t *testing.T) {
	service, store := newTestService(t)
	runner := &countingRunner{disposition: Ok()}
	require.NoError(t, service.RegisterRunner("demo", runner))

	enabled := newConfig(t, "minute=30", "demo")
	require.NoError(t, enabled.SetItemValue(ItemEnabled, true))
	enabled, err := store.Save(enabled)
	require.NoError(t, err)

	disabled := newConfig(t, "minute=30", "demo")
	require.NoError(t, disabled.SetItemValue(ItemEnabled, false))
	disabled, err = store.Save(disabled)
	require.NoError(t, err)

	require.NoError(t, service.StartAll())

	_, ok := service.FindTimer(enabled.UniqueID())
	assert.True(t, ok)
	_, ok = service.FindTimer(disabled.UniqueID())
	assert.False(t, ok)
}

func TestStartAllHonorsCap(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	service := NewService(store, events.NewBroker(), 1)
	t.Cleanup(service.StopAll)
	require.NoError(t, service.RegisterRunner("demo", &countingRunner{disposition: Ok()}))

	for i := 0; i < 3; i++ {
		config := newConfig(t, "minute=30", "demo")
		require.NoError(t, config.SetItemValue(ItemEnabled, true))
		_, err := store.Save(config)
		require.NoError(t, err)
	}

	require.NoError(t, service.StartAll())

	service.mu.Lock()
	live := len(service.timers)
	service.mu.Unlock()
	assert.Equal(t, 1, live)
}

func TestUpdateTimerDetails(t *testing.T) {
	service, _ := newTestService(t)
	require.NoError(t, service.RegisterRunner("demo", &countingRunner{disposition: Ok()}))

	config, err := service.Start(newConfig(t, "minute=30", "demo"))
	require.NoError(t, err)

	config.RemoveItem(ItemNextTimeout)
	service.UpdateTimerDetails(config)
	assert.True(t, config.HasItem(ItemNextTimeout))
	assert.True(t, config.HasItem(ItemTimeRemaining))

	_, err = service.Stop(config)
	require.NoError(t, err)
	service.UpdateTimerDetails(config)
	assert.False(t, config.HasItem(ItemNextTimeout))
}
