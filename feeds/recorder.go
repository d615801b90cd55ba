package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// LIVE RECORDER - Binance bookTicker stream into the tick cache
// ═══════════════════════════════════════════════════════════════════════════════

const BinanceStreamURL = "wss://stream.binance.com:9443/stream"

// TickSink persists recorded ticks
type TickSink interface {
	Append(ctx context.Context, symbol string, ticks []types.Tick, retention time.Duration) (time.Time, error)
}

type RecorderConfig struct {
	StreamURL     string
	Retention     time.Duration // 0 keeps everything
	FlushInterval time.Duration
}

// Recorder streams best bid/ask updates and flushes them in batches
type Recorder struct {
	cfg     RecorderConfig
	symbols []string
	sink    TickSink
	now     func() time.Time

	mu      sync.Mutex
	conn    *websocket.Conn
	buf     map[string][]types.Tick
	running bool

	received int64
	written  int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewRecorder(symbols []string, sink TickSink, cfg RecorderConfig) *Recorder {
	if cfg.StreamURL == "" {
		cfg.StreamURL = BinanceStreamURL
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	upper := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			upper = append(upper, s)
		}
	}
	return &Recorder{
		cfg:     cfg,
		symbols: upper,
		sink:    sink,
		now:     func() time.Time { return time.Now().UTC() },
		buf:     make(map[string][]types.Tick),
		stopCh:  make(chan struct{}),
	}
}

// Start connects and begins recording until Stop
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(2)
	go r.runWebSocket()
	go r.flushLoop(ctx)

	log.Info().Strs("symbols", r.symbols).Dur("flush", r.cfg.FlushInterval).Msg("🎙️ Tick recorder started")
}

// Stop closes the stream and flushes what is buffered
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	if r.conn != nil {
		r.conn.Close()
	}
	r.mu.Unlock()

	r.wg.Wait()
	received, written := r.Stats()
	log.Info().Int64("received", received).Int64("written", written).Msg("Tick recorder stopped")
}

func (r *Recorder) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Recorder) streamURL() string {
	streams := make([]string, len(r.symbols))
	for i, s := range r.symbols {
		streams[i] = strings.ToLower(s) + "@bookTicker"
	}
	return fmt.Sprintf("%s?streams=%s", r.cfg.StreamURL, strings.Join(streams, "/"))
}

func (r *Recorder) runWebSocket() {
	defer r.wg.Done()
	for r.isRunning() {
		conn, err := r.connectWebSocket()
		if err != nil {
			log.Error().Err(err).Msg("WebSocket connection failed")
			if !r.sleep(5 * time.Second) {
				return
			}
			continue
		}

		r.readMessages(conn)

		if r.isRunning() {
			log.Warn().Msg("WebSocket disconnected, reconnecting...")
			if !r.sleep(time.Second) {
				return
			}
		}
	}
}

// sleep waits d unless stopped first
func (r *Recorder) sleep(d time.Duration) bool {
	select {
	case <-r.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

func (r *Recorder) connectWebSocket() (*websocket.Conn, error) {
	url := r.streamURL()
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("recorder stopped")
	}
	r.conn = conn
	r.mu.Unlock()

	log.Info().Str("url", url).Msg("🔌 WebSocket connected to Binance")
	return conn, nil
}

func (r *Recorder) readMessages(conn *websocket.Conn) {
	defer conn.Close()
	for r.isRunning() {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if r.isRunning() {
				log.Error().Err(err).Msg("WebSocket read error")
			}
			return
		}
		r.handleMessage(message)
	}
}

type bookTickerEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Bid    string `json:"b"`
		Ask    string `json:"a"`
	} `json:"data"`
}

// handleMessage buffers one combined-stream bookTicker update, stamped on receipt
func (r *Recorder) handleMessage(data []byte) {
	var ev bookTickerEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Data.Symbol == "" {
		return
	}
	tick := types.Tick{Time: r.now(), Bid: parseNullDecimal(ev.Data.Bid), Ask: parseNullDecimal(ev.Data.Ask)}
	if !tick.Bid.Valid && !tick.Ask.Valid {
		return
	}

	r.mu.Lock()
	r.buf[ev.Data.Symbol] = append(r.buf[ev.Data.Symbol], tick)
	r.received++
	r.mu.Unlock()
}

func (r *Recorder) flushLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				log.Warn().Err(err).Msg("Tick flush failed")
			}
		case <-r.stopCh:
			if err := r.Flush(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("Final tick flush failed")
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// Flush writes buffered ticks. Failed symbols are put back for the next flush.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	pending := r.buf
	r.buf = make(map[string][]types.Tick)
	r.mu.Unlock()

	var firstErr error
	for symbol, ticks := range pending {
		if _, err := r.sink.Append(ctx, symbol, ticks, r.cfg.Retention); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			r.mu.Lock()
			r.buf[symbol] = append(ticks, r.buf[symbol]...)
			r.mu.Unlock()
			continue
		}
		r.mu.Lock()
		r.written += int64(len(ticks))
		r.mu.Unlock()
	}
	return firstErr
}

// Stats returns updates received and ticks written so far
func (r *Recorder) Stats() (received, written int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received, r.written
}
