package card

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval 扫描读卡器的默认间隔
const DefaultPollInterval = time.Second

// pcsc 在没有读卡器时返回错误而不是空列表
const noReaderError = "scard: Cannot find a smart card reader."

// TapHandler 处理一次刷卡，返回后卡片仍保持连接直到被移走
type TapHandler func(ctx context.Context, c Card)

// Watcher 轮询读卡器，新放上的卡片触发一次 TapHandler
//
// Watcher 不是并发安全的，Run 和 WaitForTap 不能同时使用。
type Watcher struct {
	readers  ReaderContext
	interval time.Duration
	timeout  time.Duration
	present  map[string]*ReaderTransceiver

	statusMu sync.RWMutex
	status   WatcherStatus
}

// WatcherStatus 最近一次轮询的结果，供健康检查使用
type WatcherStatus struct {
	Readers  []string
	Cards    int
	LastPoll time.Time
	LastErr  error
}

// NewWatcher 创建读卡器监视器
func NewWatcher(readers ReaderContext, interval time.Duration, timeout time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		readers:  readers,
		interval: interval,
		timeout:  timeout,
		present:  make(map[string]*ReaderTransceiver),
	}
}

// Run 持续轮询直到 ctx 结束
func (w *Watcher) Run(ctx context.Context, handler TapHandler) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer w.closeAll()

	log.Info().Dur("interval", w.interval).Msg("Card watcher started")

	for {
		for _, t := range w.Poll() {
			handler(ctx, NewClient(t))
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Card watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// WaitForTap 阻塞直到有新卡片放上读卡器
func (w *Watcher) WaitForTap(ctx context.Context) (*Client, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if taps := w.Poll(); len(taps) > 0 {
			return NewClient(taps[0]), nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "no card tapped")
		case <-ticker.C:
		}
	}
}

// Poll 扫描一次读卡器，返回新出现的卡片
func (w *Watcher) Poll() []*ReaderTransceiver {
	readers, err := w.readers.ListReaders()
	if err != nil {
		if err.Error() != noReaderError {
			log.Error().Err(err).Msg("Failed to enumerate smart card readers")
			w.setStatus(WatcherStatus{LastPoll: time.Now(), LastErr: err})
			return nil
		}
		readers = nil
	}
	defer func() {
		w.setStatus(WatcherStatus{Readers: readers, Cards: len(w.present), LastPoll: time.Now()})
	}()

	var taps []*ReaderTransceiver
	seen := make(map[string]struct{}, len(readers))

	for _, reader := range readers {
		seen[reader] = struct{}{}

		if t, ok := w.present[reader]; ok {
			if err := t.ping(); err == nil {
				continue
			}
			_ = t.Close()
			delete(w.present, reader)
			log.Debug().Str("reader", reader).Msg("Card removed")
		}

		c, err := w.readers.Connect(reader)
		if err != nil {
			// 读卡器上没有卡
			continue
		}

		t := newReaderTransceiver(w.readers, reader, c, w.timeout)
		w.present[reader] = t
		taps = append(taps, t)
		log.Debug().Str("reader", reader).Msg("Card tapped")
	}

	for reader, t := range w.present {
		if _, ok := seen[reader]; !ok {
			_ = t.Close()
			delete(w.present, reader)
		}
	}

	return taps
}

// Status 返回最近一次轮询的结果，可以和 Run 并发调用
func (w *Watcher) Status() WatcherStatus {
	w.statusMu.RLock()
	defer w.statusMu.RUnlock()
	return w.status
}

func (w *Watcher) setStatus(s WatcherStatus) {
	w.statusMu.Lock()
	w.status = s
	w.statusMu.Unlock()
}

// Close 断开所有卡片并释放 PC/SC 上下文
func (w *Watcher) Close() error {
	w.closeAll()
	return w.readers.Release()
}

func (w *Watcher) closeAll() {
	for reader, t := range w.present {
		_ = t.Close()
		delete(w.present, reader)
	}
}
