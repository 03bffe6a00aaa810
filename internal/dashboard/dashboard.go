package dashboard

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"
	"unicode"

	"github.com/mum4k/termdash"
	"github.com/mum4k/termdash/cell"
	"github.com/mum4k/termdash/container"
	"github.com/mum4k/termdash/container/grid"
	"github.com/mum4k/termdash/keyboard"
	"github.com/mum4k/termdash/linestyle"
	"github.com/mum4k/termdash/terminal/tcell"
	"github.com/mum4k/termdash/terminal/terminalapi"
	"github.com/mum4k/termdash/widgets/text"
	"github.com/sirupsen/logrus"

	"bookwatch/config"
	"bookwatch/internal/metrics"
	"bookwatch/internal/render"
	"bookwatch/logger"
	"bookwatch/models"
)

const (
	marketHeightPerc = 14
	bookHeightPerc   = 58
	bottomHeightPerc = 20
	statusHeightPerc = 8
)

// Dashboard is the terminal view of a market data session.
type Dashboard struct {
	cfg     config.DashboardConfig
	src     render.Source
	symbol  string
	refresh func()
	log     *logger.Log

	metricStore   *metricStore
	logStore      *logStore
	metricHandler metrics.MetricHandlerID

	market *text.Text
	book   *text.Text
	trades *text.Text
	stats  *text.Text
	logs   *text.Text
	status *text.Text
}

// New builds the widgets and starts capturing metrics and logs. refresh is
// invoked when the user asks for a manual refresh.
func New(cfg config.DashboardConfig, src render.Source, symbol string, refresh func(), log *logger.Log) (*Dashboard, error) {
	if cfg.RedrawInterval <= 0 {
		cfg.RedrawInterval = 250 * time.Millisecond
	}
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}
	if refresh == nil {
		refresh = func() {}
	}

	d := &Dashboard{
		cfg:         cfg,
		src:         src,
		symbol:      symbol,
		refresh:     refresh,
		log:         log,
		metricStore: newMetricStore(),
		logStore:    newLogStore(cfg.LogHistory),
	}

	var err error
	for _, w := range []**text.Text{&d.market, &d.book, &d.trades, &d.stats, &d.status} {
		if *w, err = text.New(); err != nil {
			return nil, fmt.Errorf("failed to create text widget: %w", err)
		}
	}
	if d.logs, err = text.New(text.RollContent()); err != nil {
		return nil, fmt.Errorf("failed to create log widget: %w", err)
	}

	d.metricHandler = metrics.RegisterMetricHandler(d.metricStore.handle)
	if log != nil {
		log.AddHook(d.logStore)
	}
	return d, nil
}

// Close stops capturing metrics and logs.
func (d *Dashboard) Close() {
	metrics.UnregisterMetricHandler(d.metricHandler)
	d.logStore.close()
}

// Run takes over the terminal until ctx is done or the user quits.
func (d *Dashboard) Run(ctx context.Context) error {
	t, err := tcell.New(tcell.ColorMode(terminalapi.ColorMode256))
	if err != nil {
		return fmt.Errorf("failed to create terminal: %w", err)
	}
	defer t.Close()

	opts, err := d.layout()
	if err != nil {
		return err
	}
	c, err := container.New(t, opts...)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go d.loop(ctx, t)

	return termdash.Run(ctx, t, c,
		termdash.RedrawInterval(d.cfg.RedrawInterval),
		termdash.KeyboardSubscriber(d.keyHandler(cancel)),
	)
}

func (d *Dashboard) layout() ([]container.Option, error) {
	builder := grid.New()
	builder.Add(
		grid.RowHeightPerc(marketHeightPerc,
			grid.Widget(d.market,
				container.Border(linestyle.Light),
				container.BorderTitle(fmt.Sprintf(" %s Order Book ", d.symbol)),
			),
		),
		grid.RowHeightPerc(bookHeightPerc,
			grid.ColWidthPerc(55,
				grid.Widget(d.book,
					container.Border(linestyle.Light),
					container.BorderTitle(" Order Book "),
				),
			),
			grid.ColWidthPerc(45,
				grid.Widget(d.trades,
					container.Border(linestyle.Light),
					container.BorderTitle(" Recent Trades "),
				),
			),
		),
		grid.RowHeightPerc(bottomHeightPerc,
			grid.ColWidthPerc(35,
				grid.Widget(d.stats,
					container.Border(linestyle.Light),
					container.BorderTitle(" Metrics "),
				),
			),
			grid.ColWidthPerc(65,
				grid.Widget(d.logs,
					container.Border(linestyle.Light),
					container.BorderTitle(" Logs "),
				),
			),
		),
		grid.RowHeightPerc(statusHeightPerc,
			grid.Widget(d.status,
				container.Border(linestyle.Light),
			),
		),
	)

	opts, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build grid layout: %w", err)
	}
	return opts, nil
}

type sizer interface {
	Size() image.Point
}

func (d *Dashboard) loop(ctx context.Context, t sizer) {
	ticker := time.NewTicker(d.cfg.RedrawInterval)
	defer ticker.Stop()

	for {
		if err := d.update(bookRowsFor(t.Size().Y)); err != nil && d.log != nil {
			d.log.WithComponent("dashboard").WithError(err).Debug("failed to update widgets")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dashboard) keyHandler(quit context.CancelFunc) func(*terminalapi.Keyboard) {
	return func(k *terminalapi.Keyboard) {
		switch k.Key {
		case 'q', 'Q', keyboard.KeyEsc, keyboard.KeyCtrlC:
			quit()
		case 'r', 'R':
			d.refresh()
		}
	}
}

// bookRowsFor returns how many book rows fit a terminal of the given height
// once borders and the column header are taken out.
func bookRowsFor(termHeight int) int {
	rows := termHeight*bookHeightPerc/100 - 3
	if rows < 0 {
		return 0
	}
	return rows
}

// update redraws every widget from the current session state.
func (d *Dashboard) update(bookRows int) error {
	snap := d.src.Snapshot()
	spread := render.Spread(d.src.Spread())
	errText := d.src.Error()

	panels := []struct {
		w      *text.Text
		chunks []chunk
	}{
		{d.market, marketChunks(snap, spread)},
		{d.book, bookChunks(snap, bookRows)},
		{d.trades, tradeChunks(snap, time.Local)},
		{d.stats, plainChunks(d.metricStore.lines())},
		{d.logs, logChunks(d.logStore.tail(d.cfg.LogHistory))},
		{d.status, statusChunks(d.src.Status(), errText)},
	}
	for _, p := range panels {
		if err := writeChunks(p.w, p.chunks); err != nil {
			return err
		}
	}
	return nil
}

// chunk is a run of text written with one foreground color.
type chunk struct {
	text  string
	color cell.Color
}

func writeChunks(w *text.Text, chunks []chunk) error {
	first := true
	for _, c := range chunks {
		if c.text == "" {
			continue
		}
		opts := []text.WriteOption{text.WriteCellOpts(cell.FgColor(c.color))}
		if first {
			opts = append(opts, text.WriteReplace())
			first = false
		}
		if err := w.Write(printable(c.text), opts...); err != nil {
			return err
		}
	}
	if first {
		w.Reset()
	}
	return nil
}

// printable replaces control characters the text widget rejects.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || !unicode.IsControl(r) {
			return r
		}
		return ' '
	}, s)
}

func marketChunks(snap *models.Snapshot, spread string) []chunk {
	if snap == nil {
		return []chunk{{text: render.LoadingMarket, color: cell.ColorDefault}}
	}
	ohlc, stats := render.MarketInfo(snap.Ticker, spread)
	change := changeColor(snap.Ticker)

	i := strings.LastIndex(stats, "24h Change:")
	if i < 0 {
		return []chunk{{text: ohlc + "\n" + stats, color: cell.ColorDefault}}
	}
	return []chunk{
		{text: ohlc + "\n" + stats[:i], color: cell.ColorDefault},
		{text: stats[i:], color: change},
	}
}

func changeColor(t models.Ticker) cell.Color {
	if t.PriceChangePercent.IsNegative() {
		return cell.ColorRed
	}
	return cell.ColorGreen
}

func bookChunks(snap *models.Snapshot, rows int) []chunk {
	if snap == nil {
		return []chunk{{text: render.LoadingBook, color: cell.ColorDefault}}
	}

	out := []chunk{{text: fmt.Sprintf("%14s %14s %14s\n", "Price", "Amount", "Total"), color: cell.ColorDefault}}
	for _, r := range render.BookRows(snap.OrderBook, snap.Ticker.LastPrice, true, rows) {
		switch r.Kind {
		case render.AskRow:
			out = append(out, chunk{text: fmt.Sprintf("%14s %14s %14s\n", r.Price, r.Quantity, r.Total), color: cell.ColorRed})
		case render.LastPriceRow:
			out = append(out, chunk{text: fmt.Sprintf("%14s\n", r.Price), color: cell.ColorYellow})
		case render.BidRow:
			out = append(out, chunk{text: fmt.Sprintf("%14s %14s %14s\n", r.Price, r.Quantity, r.Total), color: cell.ColorGreen})
		}
	}
	return out
}

func tradeChunks(snap *models.Snapshot, loc *time.Location) []chunk {
	if snap == nil {
		return []chunk{{text: render.LoadingTrades, color: cell.ColorDefault}}
	}

	out := []chunk{{text: fmt.Sprintf("%-10s %14s %14s %5s\n", "Time", "Price", "Amount", "Side"), color: cell.ColorDefault}}
	for _, r := range render.Trades(snap.Trades, loc) {
		color := cell.ColorGreen
		if r.Side == models.Sell {
			color = cell.ColorRed
		}
		out = append(out, chunk{text: fmt.Sprintf("%-10s %14s %14s %5s\n", r.Time, r.Price, r.Quantity, r.Side), color: color})
	}
	return out
}

func plainChunks(lines []string) []chunk {
	out := make([]chunk, 0, len(lines))
	for _, l := range lines {
		out = append(out, chunk{text: l + "\n", color: cell.ColorDefault})
	}
	return out
}

func logChunks(records []logRecord) []chunk {
	out := make([]chunk, 0, len(records))
	for _, r := range records {
		color := cell.ColorDefault
		switch {
		case r.Level <= logrus.ErrorLevel:
			color = cell.ColorRed
		case r.Level == logrus.WarnLevel:
			color = cell.ColorYellow
		}
		out = append(out, chunk{text: r.String() + "\n", color: color})
	}
	return out
}

func statusChunks(status, errText string) []chunk {
	color := cell.ColorDefault
	if errText != "" {
		color = cell.ColorRed
	}
	return []chunk{{text: render.StatusLine(status, errText), color: color}}
}
