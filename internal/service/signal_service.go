package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fxhedz/internal/domain"
	"fxhedz/internal/metrics"
)

// PreviewConfig configures the public teaser
type PreviewConfig struct {
	Pair    string
	TTL     time.Duration
	Candles int
}

// Preview is the ungated teaser for one instrument
type Preview struct {
	Direction  string          `json:"direction"`
	Price      decimal.Decimal `json:"price"`
	Entry      decimal.Decimal `json:"entry"`
	StopLoss   decimal.Decimal `json:"sl"`
	TakeProfit decimal.Decimal `json:"tp"`
	Candles    []domain.Candle `json:"candles"`
}

// SignalService proxies gated signal payloads and serves the cached public preview
type SignalService struct {
	source  domain.SignalSource
	cache   *gocache.Cache
	preview PreviewConfig
	metrics *metrics.Registry
	logger  *zap.Logger
}

// NewSignalService creates a new SignalService
func NewSignalService(source domain.SignalSource, preview PreviewConfig, m *metrics.Registry, log *zap.Logger) *SignalService {
	if preview.Pair == "" {
		preview.Pair = "XAUUSD"
	}
	if preview.Candles <= 0 {
		preview.Candles = 40
	}
	if preview.TTL <= 0 {
		preview.TTL = 10 * time.Second
	}
	return &SignalService{
		source:  source,
		cache:   gocache.New(preview.TTL, 2*preview.TTL),
		preview: preview,
		metrics: m,
		logger:  log.Named("signals"),
	}
}

// Fetch returns the upstream payload as-is; callers accept both the bare and wrapped shapes
func (s *SignalService) Fetch(ctx context.Context, q domain.SignalQuery) (json.RawMessage, error) {
	body, err := s.source.FetchSignals(ctx, q)
	if err != nil {
		s.record("error")
		return nil, err
	}
	s.record("ok")
	return json.RawMessage(body), nil
}

// StreamOptions controls a signal stream
type StreamOptions struct {
	Interval time.Duration

	// Recheck re-verifies access every RecheckEvery; a non-nil error ends the stream
	Recheck      func(ctx context.Context) error
	RecheckEvery time.Duration
}

// Stream polls upstream every interval and emits the payload whenever it changes.
// It returns nil when ctx is cancelled, the Recheck error once access is lost,
// and the emit error if emitting fails.
func (s *SignalService) Stream(ctx context.Context, q domain.SignalQuery, opts StreamOptions, emit func([]byte) error) error {
	if s.metrics != nil {
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	// the caller checked access before opening the stream
	checked := time.Now()

	var last []byte
	for {
		if opts.Recheck != nil && time.Since(checked) >= opts.RecheckEvery {
			if err := opts.Recheck(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			checked = time.Now()
		}

		body, err := s.Fetch(ctx, q)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Debug("stream tick skipped", zap.String("pair", q.Pair), zap.Error(err))
		default:
			canonical, cerr := domain.CanonicalJSON(body)
			if cerr != nil {
				s.logger.Debug("stream payload not canonicalizable", zap.Error(cerr))
				break
			}
			if !bytes.Equal(canonical, last) {
				if err := emit(canonical); err != nil {
					return err
				}
				last = canonical
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Preview returns the cached teaser, fetching it when the cache is cold
func (s *SignalService) Preview(ctx context.Context) (*Preview, error) {
	if cached, ok := s.cache.Get(s.previewKey()); ok {
		return cached.(*Preview), nil
	}
	return s.WarmPreview(ctx)
}

// WarmPreview fetches the teaser and stores it in the cache
func (s *SignalService) WarmPreview(ctx context.Context) (*Preview, error) {
	body, err := s.Fetch(ctx, domain.SignalQuery{Pair: s.preview.Pair})
	if err != nil {
		return nil, err
	}

	detail, err := decodePreviewDetail(body, s.preview.Pair)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSignalFetchFailed, err)
	}

	p := &Preview{
		Direction:  detail.Direction,
		Price:      detail.Price,
		Entry:      detail.Entry,
		StopLoss:   detail.StopLoss,
		TakeProfit: detail.TakeProfit,
		Candles:    detail.LastCandles(s.preview.Candles),
	}
	if p.Candles == nil {
		p.Candles = []domain.Candle{}
	}

	s.cache.SetDefault(s.previewKey(), p)
	return p, nil
}

func (s *SignalService) previewKey() string {
	return "preview:" + strings.ToUpper(s.preview.Pair)
}

func (s *SignalService) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordSignalFetch(result)
	}
}

// decodePreviewDetail accepts a pair detail, or a signal set containing the pair
func decodePreviewDetail(body []byte, pair string) (*domain.PairDetail, error) {
	detail, err := domain.DecodePairDetail(body)
	if err != nil {
		return nil, err
	}
	if detail.Direction != "" {
		return detail, nil
	}

	set, _, err := domain.DecodeSignalSet(body)
	if err != nil {
		return nil, err
	}
	snap, ok := set[strings.ToUpper(pair)]
	if !ok {
		return nil, fmt.Errorf("preview pair %s missing from payload", pair)
	}
	return &domain.PairDetail{SignalSnapshot: snap}, nil
}
