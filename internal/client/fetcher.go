package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"fxhedz/internal/domain"
)

const (
	snapshotTask = "snapshot"
	detailPrefix = "detail:"
)

// UpdateKind distinguishes snapshot and detail updates
type UpdateKind int

const (
	UpdateSnapshot UpdateKind = iota
	UpdateDetail
)

// Update is one state update emitted by the fetcher
type Update struct {
	Kind        UpdateKind
	Signals     domain.SignalSet
	Placeholder bool
	Pair        string
	Detail      *domain.PairDetail
}

// Fetcher emits placeholder signals until access is ACTIVE, then polls the gateway
type Fetcher struct {
	client           *Client
	scheduler        *Scheduler
	instruments      []string
	snapshotInterval time.Duration
	detailInterval   time.Duration
	logger           *zap.Logger

	mu              sync.Mutex
	ctx             context.Context
	state           domain.AccessState
	last            domain.SignalSet
	lastPlaceholder bool
	openPair        string
	lastDetail      []byte
	listeners       []func(Update)
}

// NewFetcher creates a gated signal fetcher
func NewFetcher(client *Client, scheduler *Scheduler, instruments []string, snapshotInterval, detailInterval time.Duration, log *zap.Logger) *Fetcher {
	return &Fetcher{
		client:           client,
		scheduler:        scheduler,
		instruments:      instruments,
		snapshotInterval: snapshotInterval,
		detailInterval:   detailInterval,
		logger:           log.Named("fetcher"),
		state:            domain.AccessUnknown,
	}
}

// OnUpdate registers a listener for snapshot and detail updates
func (f *Fetcher) OnUpdate(fn func(Update)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// Start emits the initial placeholder set
func (f *Fetcher) Start(ctx context.Context) {
	f.mu.Lock()
	f.ctx = ctx
	f.applyLocked(f.state)
}

// SetAccess applies an access state change, starting or cancelling the polling loops
func (f *Fetcher) SetAccess(status domain.AccessStatus) {
	f.mu.Lock()
	if f.ctx == nil || status.State == f.state {
		f.state = status.State
		f.mu.Unlock()
		return
	}
	f.applyLocked(status.State)
}

// applyLocked switches to state and releases f.mu before emitting
func (f *Fetcher) applyLocked(state domain.AccessState) {
	f.state = state

	var pending []Update
	var listeners []func(Update)
	if state == domain.AccessActive {
		f.scheduler.Start(f.ctx, snapshotTask, f.snapshotInterval, f.pollSnapshot)
		if f.openPair != "" {
			f.startDetailLocked(f.openPair)
		}
	} else {
		f.scheduler.Stop(snapshotTask)
		f.scheduler.StopPrefix(detailPrefix)
		f.lastDetail = nil
		if u, ok := f.commitSnapshotLocked(domain.PlaceholderSignals(f.instruments), true); ok {
			pending = append(pending, u)
			listeners = f.copyListenersLocked()
		}
	}
	f.mu.Unlock()

	f.emit(listeners, pending...)
}

// Open starts detail polling for one instrument, replacing any other open instrument
func (f *Fetcher) Open(pair string) {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	if pair == "" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openPair != "" && f.openPair != pair {
		f.scheduler.Stop(detailPrefix + f.openPair)
	}
	f.openPair = pair
	f.lastDetail = nil

	if f.state == domain.AccessActive && f.ctx != nil {
		f.startDetailLocked(pair)
	}
}

// CloseDetail cancels detail polling for the open instrument
func (f *Fetcher) CloseDetail() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.openPair != "" {
		f.scheduler.Stop(detailPrefix + f.openPair)
	}
	f.openPair = ""
	f.lastDetail = nil
}

// Snapshot returns the last emitted signal set and whether it is the placeholder
func (f *Fetcher) Snapshot() (domain.SignalSet, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.lastPlaceholder
}

func (f *Fetcher) startDetailLocked(pair string) {
	f.scheduler.Start(f.ctx, detailPrefix+pair, f.detailInterval, func(ctx context.Context) {
		f.pollDetail(ctx, pair)
	})
}

func (f *Fetcher) pollSnapshot(ctx context.Context) {
	var raw []byte
	if err := f.client.GetJSON(ctx, "/api/signals", nil, &raw); err != nil {
		f.logger.Debug("snapshot tick skipped", zap.Error(err))
		return
	}

	set, dropped, err := domain.DecodeSignalSet(raw)
	if err != nil {
		f.logger.Debug("snapshot payload rejected", zap.Error(err))
		return
	}
	for symbol, err := range dropped {
		f.logger.Warn("instrument dropped from snapshot", zap.String("pair", symbol), zap.Error(err))
	}

	f.mu.Lock()
	if ctx.Err() != nil || f.state != domain.AccessActive {
		f.mu.Unlock()
		return
	}
	u, ok := f.commitSnapshotLocked(set, false)
	var listeners []func(Update)
	if ok {
		listeners = f.copyListenersLocked()
	}
	f.mu.Unlock()

	if ok {
		f.emit(listeners, u)
	}
}

func (f *Fetcher) pollDetail(ctx context.Context, pair string) {
	var raw []byte
	if err := f.client.GetJSON(ctx, "/api/signals", url.Values{"pair": {pair}}, &raw); err != nil {
		f.logger.Debug("detail tick skipped", zap.String("pair", pair), zap.Error(err))
		return
	}

	detail, err := domain.DecodePairDetail(raw)
	if err != nil {
		f.logger.Debug("detail payload rejected", zap.String("pair", pair), zap.Error(err))
		return
	}
	canonical, err := json.Marshal(detail)
	if err != nil {
		return
	}

	f.mu.Lock()
	if ctx.Err() != nil || f.openPair != pair || f.state != domain.AccessActive || bytes.Equal(canonical, f.lastDetail) {
		f.mu.Unlock()
		return
	}
	f.lastDetail = canonical
	listeners := f.copyListenersLocked()
	f.mu.Unlock()

	f.emit(listeners, Update{Kind: UpdateDetail, Pair: pair, Detail: detail})
}

// commitSnapshotLocked stores set unless it equals the last emitted one
func (f *Fetcher) commitSnapshotLocked(set domain.SignalSet, placeholder bool) (Update, bool) {
	if f.last != nil && f.lastPlaceholder == placeholder && f.last.Equal(set) {
		return Update{}, false
	}
	f.last = set
	f.lastPlaceholder = placeholder
	return Update{Kind: UpdateSnapshot, Signals: set, Placeholder: placeholder}, true
}

func (f *Fetcher) copyListenersLocked() []func(Update) {
	return append([]func(Update){}, f.listeners...)
}

func (f *Fetcher) emit(listeners []func(Update), updates ...Update) {
	for _, u := range updates {
		for _, fn := range listeners {
			fn(u)
		}
	}
}
