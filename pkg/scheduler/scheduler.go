package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/events"
	"github.com/flowmill/flowmill/pkg/log"
	"github.com/flowmill/flowmill/pkg/metrics"
	"github.com/flowmill/flowmill/pkg/storage"
	"github.com/flowmill/flowmill/pkg/types"
)

// Items of a scheduler configuration document (type "scheduler").
const (
	ItemDefinition    = "txtscheduler_definition"
	ItemEnabled       = "_scheduler_enabled"
	ItemClass         = "_scheduler_class"
	ItemLog           = "_scheduler_log"
	ItemErrorMessage  = "errormessage"
	ItemNextTimeout   = "nexttimeout"
	ItemTimeRemaining = "timeremaining"
)

// maxLogEntries caps the status log carried in a configuration document.
const maxLogEntries = 30

type dispositionKind int

const (
	dispositionOk dispositionKind = iota
	dispositionContinue
	dispositionStop
)

// Disposition tells the service what to do with the timer after a
// firing: Ok and Continue leave it armed, Stop cancels it.
type Disposition struct {
	kind dispositionKind
	err  error
}

func Ok() Disposition { return Disposition{} }

func Continue(err error) Disposition { return Disposition{kind: dispositionContinue, err: err} }

func Stop(err error) Disposition { return Disposition{kind: dispositionStop, err: err} }

// Runner is a scheduler implementation. Run receives the persisted
// configuration document and returns the (possibly updated) document to
// persist plus the timer disposition.
type Runner interface {
	Run(config *document.ItemCollection) (*document.ItemCollection, Disposition)
}

type timer struct {
	id       string
	calendar *Calendar
	stopCh   chan struct{}
	mu       sync.Mutex
	nextRun  time.Time
}

// Service manages calendar timers for scheduler configurations: at most
// one live timer per configuration id, firings serialized per id,
// parallel across ids.
type Service struct {
	store   storage.DocumentStore
	broker  *events.Broker
	maxLive int

	mu      sync.Mutex
	runners map[string]Runner
	timers  map[string]*timer
}

func NewService(store storage.DocumentStore, broker *events.Broker, maxLive int) *Service {
	if maxLive <= 0 {
		maxLive = 100
	}
	return &Service{
		store:   store,
		broker:  broker,
		maxLive: maxLive,
		runners: make(map[string]Runner),
		timers:  make(map[string]*timer),
	}
}

// RegisterRunner registers a scheduler implementation under a name
// referenced by configuration documents.
func (s *Service) RegisterRunner(name string, r Runner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runners[name]; exists {
		return fmt.Errorf("runner already registered: %s", name)
	}
	s.runners[name] = r
	return nil
}

// Start arms a timer for the configuration. An existing timer with the
// same id is cancelled first. The updated configuration is persisted and
// returned.
func (s *Service) Start(config *document.ItemCollection) (*document.ItemCollection, error) {
	calendar, err := ParseCalendar(config.GetItemValueString(ItemDefinition))
	if err != nil {
		return nil, err
	}

	if config.UniqueID() == "" {
		config.SetType(types.TypeScheduler)
		if config, err = s.store.Save(config); err != nil {
			return nil, err
		}
	}
	id := config.UniqueID()

	next, ok := calendar.Next(time.Now())
	if !ok {
		return nil, types.NewWorkflowError("scheduler", types.CodeSchedulerError,
			fmt.Sprintf("schedule of %s has no future fire time", id))
	}

	if err := config.ReplaceItemValue(ItemEnabled, true); err != nil {
		return nil, err
	}
	s.setTimerDetails(config, next)
	appendLog(config, fmt.Sprintf("Started: %s", time.Now().UTC().Format(time.RFC3339)))

	// a failed save must not leave a timer behind; an existing timer
	// keeps running until the new one is confirmed
	if config, err = s.store.Save(config); err != nil {
		return nil, err
	}

	if s.cancelTimer(id) {
		metrics.SchedulersActive.Dec()
	}
	t := &timer{id: id, calendar: calendar, stopCh: make(chan struct{}), nextRun: next}
	s.mu.Lock()
	s.timers[id] = t
	s.mu.Unlock()

	go s.runTimer(t)

	metrics.SchedulersActive.Inc()
	s.broker.Publish(&events.Event{Phase: events.PhaseSchedulerStarted,
		Metadata: map[string]string{"scheduler": id}})
	log.WithScheduler(id).Info().Time("next_run", next).Msg("scheduler started")
	return config, nil
}

// Stop cancels the timer, disables the configuration and persists it.
func (s *Service) Stop(config *document.ItemCollection) (*document.ItemCollection, error) {
	id := config.UniqueID()
	if s.cancelTimer(id) {
		metrics.SchedulersActive.Dec()
	}

	if err := config.ReplaceItemValue(ItemEnabled, false); err != nil {
		return nil, err
	}
	config.RemoveItem(ItemNextTimeout)
	config.RemoveItem(ItemTimeRemaining)
	appendLog(config, fmt.Sprintf("Stopped: %s", time.Now().UTC().Format(time.RFC3339)))

	config, err := s.store.Save(config)
	if err != nil {
		return nil, err
	}

	s.broker.Publish(&events.Event{Phase: events.PhaseSchedulerStopped,
		Metadata: map[string]string{"scheduler": id}})
	log.WithScheduler(id).Info().Msg("scheduler stopped")
	return config, nil
}

// FindTimer reports whether a live timer exists for the id and its next
// fire time.
func (s *Service) FindTimer(id string) (time.Time, bool) {
	s.mu.Lock()
	t, ok := s.timers[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextRun, true
}

// UpdateTimerDetails refreshes the derived display items on the
// configuration from the live timer state.
func (s *Service) UpdateTimerDetails(config *document.ItemCollection) {
	next, ok := s.FindTimer(config.UniqueID())
	if !ok {
		config.RemoveItem(ItemNextTimeout)
		config.RemoveItem(ItemTimeRemaining)
		return
	}
	s.setTimerDetails(config, next)
}

// StartAll scans the persisted scheduler configurations and arms a timer
// for every enabled one without a live timer, up to the service cap.
func (s *Service) StartAll() error {
	configs, err := s.store.DocumentsByType(types.TypeScheduler)
	if err != nil {
		return err
	}
	logger := log.WithComponent("scheduler")

	for _, config := range configs {
		s.mu.Lock()
		live := len(s.timers)
		_, hasTimer := s.timers[config.UniqueID()]
		s.mu.Unlock()

		if live >= s.maxLive {
			logger.Warn().Int("max", s.maxLive).Msg("scheduler cap reached, skipping remaining configurations")
			return nil
		}
		if hasTimer || !config.GetItemValueBoolean(ItemEnabled) {
			continue
		}
		if _, err := s.Start(config); err != nil {
			logger.Error().Err(err).Str("scheduler_id", config.UniqueID()).Msg("failed to start scheduler")
		}
	}
	return nil
}

// StopAll cancels all live timers without touching the persisted
// configurations.
func (s *Service) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		close(t.stopCh)
		delete(s.timers, id)
		metrics.SchedulersActive.Dec()
	}
}

func (s *Service) cancelTimer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return false
	}
	close(t.stopCh)
	delete(s.timers, id)
	return true
}

func (s *Service) runTimer(t *timer) {
	for {
		next, ok := t.calendar.Next(time.Now())
		if !ok {
			log.WithScheduler(t.id).Info().Msg("schedule exhausted")
			if s.cancelTimer(t.id) {
				metrics.SchedulersActive.Dec()
			}
			return
		}
		t.mu.Lock()
		t.nextRun = next
		t.mu.Unlock()

		fire := time.NewTimer(time.Until(next))
		select {
		case <-fire.C:
			if !s.onTimeout(t.id) {
				return
			}
		case <-t.stopCh:
			fire.Stop()
			return
		}
	}
}

// onTimeout runs one firing. The return value reports whether the timer
// stays armed.
func (s *Service) onTimeout(id string) bool {
	logger := log.WithScheduler(id)

	config, err := s.store.Load(id)
	if err != nil {
		logger.Warn().Err(err).Msg("configuration gone, cancelling timer")
		if s.cancelTimer(id) {
			metrics.SchedulersActive.Dec()
		}
		return false
	}

	name := config.GetItemValueString(ItemClass)
	s.mu.Lock()
	runner, ok := s.runners[name]
	s.mu.Unlock()

	var disposition Disposition
	if !ok {
		disposition = Stop(fmt.Errorf("unknown scheduler implementation: %s", name))
	} else {
		config, disposition = s.invoke(runner, config)
	}

	now := time.Now().UTC()
	result := "ok"
	switch disposition.kind {
	case dispositionOk:
		appendLog(config, fmt.Sprintf("Finished: %s", now.Format(time.RFC3339)))
		config.RemoveItem(ItemErrorMessage)
	case dispositionContinue:
		result = "error"
		appendLog(config, fmt.Sprintf("Error: %v", disposition.err))
		if err := config.ReplaceItemValue(ItemErrorMessage, disposition.err.Error()); err != nil {
			logger.Error().Err(err).Msg("failed to record error message")
		}
	case dispositionStop:
		result = "stopped"
		if disposition.err != nil {
			appendLog(config, fmt.Sprintf("Error: %v", disposition.err))
			if err := config.ReplaceItemValue(ItemErrorMessage, disposition.err.Error()); err != nil {
				logger.Error().Err(err).Msg("failed to record error message")
			}
		}
		if err := config.ReplaceItemValue(ItemEnabled, false); err != nil {
			logger.Error().Err(err).Msg("failed to disable configuration")
		}
		config.RemoveItem(ItemNextTimeout)
		config.RemoveItem(ItemTimeRemaining)
	}

	keepRunning := disposition.kind != dispositionStop
	if keepRunning {
		s.mu.Lock()
		t, live := s.timers[id]
		s.mu.Unlock()
		if live {
			if next, hasNext := t.calendar.Next(now); hasNext {
				s.setTimerDetails(config, next)
			}
		}
	} else {
		if s.cancelTimer(id) {
			metrics.SchedulersActive.Dec()
		}
	}

	// persisted in a fresh transaction after every firing
	if _, err := s.store.Save(config); err != nil {
		logger.Error().Err(err).Msg("failed to persist configuration")
	}

	metrics.SchedulerFiringsTotal.WithLabelValues(id, result).Inc()
	s.broker.Publish(&events.Event{Phase: events.PhaseSchedulerFired,
		Metadata: map[string]string{"scheduler": id, "result": result}})
	return keepRunning
}

// invoke shields the service from runner faults; a panic maps to Stop.
func (s *Service) invoke(runner Runner, config *document.ItemCollection) (out *document.ItemCollection, d Disposition) {
	defer func() {
		if r := recover(); r != nil {
			out = config
			d = Stop(fmt.Errorf("scheduler fault: %v", r))
		}
	}()
	out, d = runner.Run(config)
	if out == nil {
		out = config
	}
	return out, d
}

func (s *Service) setTimerDetails(config *document.ItemCollection, next time.Time) {
	if err := config.ReplaceItemValue(ItemNextTimeout, next); err != nil {
		return
	}
	_ = config.ReplaceItemValue(ItemTimeRemaining, int64(time.Until(next)/time.Millisecond))
}

func appendLog(config *document.ItemCollection, line string) {
	entries := append(config.GetItemValueStringList(ItemLog), line)
	if len(entries) > maxLogEntries {
		entries = entries[len(entries)-maxLogEntries:]
	}
	_ = config.ReplaceItemValue(ItemLog, entries)
}
