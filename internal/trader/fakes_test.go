package trader

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kjannette/trahn-signals/internal/apperr"
	"github.com/kjannette/trahn-signals/internal/models"
)

const (
	usdc   = "0xUSDC"
	tokenA = "0xAAAA000000000000000000000000000000000001"
	tokenB = "0xBBBB000000000000000000000000000000000002"
	tokenC = "0xCCCC000000000000000000000000000000000003"
)

func nullLog() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

type fakeMarket struct {
	mu    sync.Mutex
	snaps map[string]models.MarketSnapshot
	errs  map[string]error
	calls int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{snaps: map[string]models.MarketSnapshot{}, errs: map[string]error{}}
}

func (m *fakeMarket) setPrice(token string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[strings.ToLower(token)] = models.MarketSnapshot{
		TokenAddress: token,
		Price:        price,
		LiquidityUSD: 1_000_000,
		Verified:     true,
	}
}

func (m *fakeMarket) setErr(token string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[strings.ToLower(token)] = err
}

func (m *fakeMarket) GetMarketSnapshot(_ context.Context, token string) (models.MarketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	key := strings.ToLower(token)
	if err := m.errs[key]; err != nil {
		return models.MarketSnapshot{}, err
	}
	s, ok := m.snaps[key]
	if !ok {
		return models.MarketSnapshot{}, apperr.Newf(apperr.KindNotFound, "snapshot", "no pairs for %s", token)
	}
	return s, nil
}

// fakeQuotes prices at the market's spot price with no impact unless told
// otherwise.
type fakeQuotes struct {
	market *fakeMarket
	mu     sync.Mutex
	err    error
	impact float64
}

func (q *fakeQuotes) GetQuote(ctx context.Context, in, out string, amount float64) (models.Quote, error) {
	q.mu.Lock()
	err, impact := q.err, q.impact
	q.mu.Unlock()
	if err != nil {
		return models.Quote{}, err
	}

	buying := strings.EqualFold(in, usdc)
	token := out
	if !buying {
		token = in
	}
	snap, err := q.market.GetMarketSnapshot(ctx, token)
	if err != nil {
		return models.Quote{}, err
	}
	expected := amount * snap.Price
	if buying {
		expected = amount / snap.Price
	}
	return models.Quote{
		InputAsset:     in,
		OutputAsset:    out,
		InputAmount:    amount,
		ExpectedOutput: expected,
		PriceImpactPct: impact,
	}, nil
}

type fakeVenue struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (v *fakeVenue) SubmitSwap(_ context.Context, q models.Quote) (models.SwapResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.err != nil {
		return models.SwapResult{}, v.err
	}
	return models.SwapResult{TxID: "0xtx", ActualOutput: q.ExpectedOutput}, nil
}

func (v *fakeVenue) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) Send(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *fakeNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type memStore struct {
	mu        sync.Mutex
	trades    []models.TradeRecord
	positions map[string]models.Position
	loadErr   error
}

func newMemStore() *memStore {
	return &memStore{positions: map[string]models.Position{}}
}

func (s *memStore) SaveTrade(_ context.Context, r models.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, r)
	return nil
}

func (s *memStore) SavePosition(_ context.Context, p models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = p
	return nil
}

func (s *memStore) LoadOpenPositions(context.Context) ([]models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	var out []models.Position
	for _, p := range s.positions {
		if p.Status == models.PositionOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func buySignal(token string) models.Signal {
	return models.Signal{
		TokenAddress: token,
		Type:         models.SignalBuy,
		Confidence:   0.9,
		Amount:       1,
		Source:       models.SourceManual,
		Reason:       "test",
		CreatedAt:    time.Now(),
	}
}

func openPosition(id, token string, openedAt time.Time) models.Position {
	return models.Position{
		ID:              id,
		TokenAddress:    token,
		EntryPrice:      100,
		Amount:          1,
		StopLossPrice:   90,
		TakeProfitPrice: 120,
		Status:          models.PositionOpen,
		OpenedAt:        openedAt,
	}
}
