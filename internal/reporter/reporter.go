package reporter

import (
	"context"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"tnb-trading-bot-go/internal/models"
)

// reportStore 是报表需要的最小存储接口
type reportStore interface {
	ListActiveBotConfigs(ctx context.Context) ([]models.BotConfig, error)
	ListRecentRuns(ctx context.Context, limit int) ([]models.BotRun, error)
	ListRecentTrades(ctx context.Context, limit int) ([]models.TradeLog, error)
}

// Summary 汇总最近运行的统计
type Summary struct {
	TotalRuns   int
	Succeeded   int
	NoAction    int
	Failed      int
	Running     int
	TotalTraded float64 // 成交的计价货币总额
}

// Reporter 把最近的运行与成交渲染成终端表格
type Reporter struct {
	st  reportStore
	out io.Writer
}

// New 创建报表生成器
func New(st reportStore, out io.Writer) *Reporter {
	return &Reporter{st: st, out: out}
}

// PrintReport 输出活跃 bot、最近运行与最近成交三张表
func (r *Reporter) PrintReport(ctx context.Context, limit int) error {
	bots, err := r.st.ListActiveBotConfigs(ctx)
	if err != nil {
		return err
	}
	runs, err := r.st.ListRecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	trades, err := r.st.ListRecentTrades(ctx, limit)
	if err != nil {
		return err
	}

	botNames := make(map[int64]string, len(bots))
	for _, b := range bots {
		botNames[b.ID] = b.Name
	}

	r.renderBots(bots)
	r.renderRuns(runs, botNames)
	r.renderTrades(trades)
	r.renderSummary(summarize(runs, trades))
	return nil
}

func (r *Reporter) renderBots(bots []models.BotConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("活跃 Bot")
	t.AppendHeader(table.Row{"ID", "名称", "类型", "单笔上限", "最低余额", "间隔(秒)", "累计运行", "最近运行"})
	for _, b := range bots {
		lastRun := "-"
		if !b.LastRun.IsZero() {
			lastRun = b.LastRun.Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{
			b.ID, b.Name, b.BotType,
			b.MaxSpendPerTrade, b.MinBalanceRequired, b.IntervalSeconds,
			b.TotalRuns, lastRun,
		})
	}
	t.Render()
}

func (r *Reporter) renderRuns(runs []models.BotRun, botNames map[int64]string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("最近运行")
	t.AppendHeader(table.Row{"运行ID", "Bot", "开始时间", "结束时间", "状态", "原因"})
	for _, run := range runs {
		name := botNames[run.BotConfigID]
		if name == "" {
			name = "?"
		}
		ended := "-"
		if !run.EndedAt.IsZero() {
			ended = run.EndedAt.Format("15:04:05")
		}
		t.AppendRow(table.Row{
			run.ID, name,
			run.StartedAt.Format("2006-01-02 15:04:05"), ended,
			run.Status, run.Reason,
		})
	}
	t.Render()
}

func (r *Reporter) renderTrades(trades []models.TradeLog) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("最近成交")
	t.AppendHeader(table.Row{"成交ID", "运行ID", "交易对", "方向", "数量", "价格", "总额", "订单号", "成交时间"})
	for _, tr := range trades {
		t.AppendRow(table.Row{
			tr.ID, tr.BotRunID, tr.PairSymbol, tr.Side,
			tr.Quantity, tr.Price, tr.TotalValue, tr.OrderRef,
			tr.ExecutedAt.Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
}

func (r *Reporter) renderSummary(s Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("汇总")
	t.AppendRows([]table.Row{
		{"总运行次数", s.TotalRuns},
		{"成功", s.Succeeded},
		{"无动作", s.NoAction},
		{"失败", s.Failed},
		{"进行中", s.Running},
		{"成交总额", s.TotalTraded},
	})
	t.Render()
}

func summarize(runs []models.BotRun, trades []models.TradeLog) Summary {
	var s Summary
	s.TotalRuns = len(runs)
	for _, run := range runs {
		switch run.Status {
		case models.RunSuccess:
			s.Succeeded++
		case models.RunNoAction:
			s.NoAction++
		case models.RunFailed:
			s.Failed++
		case models.RunRunning:
			s.Running++
		}
	}
	for _, tr := range trades {
		s.TotalTraded += tr.TotalValue
	}
	return s
}
