package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/roundbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Broadcaster imprimiendo los eventos de ronda.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	table bool // tabla de apuestas liquidadas en cada ronda
}

// NewConsole crea un broadcaster que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un broadcaster para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// RoundSettling anuncia que la ronda dejó de aceptar cambios.
func (c *Console) RoundSettling(_ context.Context, ev domain.RoundEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%s] round %s settling @ %s\n",
		ev.Timestamp.Format("15:04:05"), shortID(ev.RoundID), ev.Price.StringFixed(4))
	return nil
}

// RoundCompleted imprime el resultado de la ronda y, en modo tabla, sus apuestas.
func (c *Console) RoundCompleted(_ context.Context, snap domain.RoundSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := snap.Round
	rep := snap.Report
	fmt.Fprintf(c.out, "[%s] round %s %s → %s  %s (%s)  bets:%d W:%d L:%d D:%d deferred:%d  profit %s\n",
		snap.Timestamp.Format("15:04:05"),
		shortID(r.ID),
		r.StartPrice.StringFixed(4),
		snap.FinalPrice.StringFixed(4),
		outcomeLabel(r.Outcome),
		snap.Decision.Rule,
		len(rep.Settled)+len(rep.Deferred),
		rep.Wins, rep.Losses, rep.Draws,
		len(rep.Deferred),
		signed(rep.RealizedProfit.StringFixed(2)),
	)

	if c.table && len(rep.Settled)+len(rep.Deferred) > 0 {
		c.printBets(rep)
	}
	for _, b := range rep.Deferred {
		fmt.Fprintf(c.out, "  ⚠ bet %s (%s) will be processed manually: %s\n", shortID(b.ID), b.Bettor, b.PayoutError)
	}
	return nil
}

func (c *Console) printBets(rep domain.SettlementReport) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Bet", "Bettor", "Dir", "Stake", "Entry", "Result", "Payout", "Status")

	for _, b := range rep.Settled {
		table.Append(
			shortID(b.ID),
			b.Bettor,
			b.Direction.String(),
			b.Stake.StringFixed(2),
			b.EntryPrice.StringFixed(4),
			b.Result.String(),
			b.PayoutAmount.StringFixed(2),
			string(b.PayoutStatus),
		)
	}
	for _, b := range rep.Deferred {
		table.Append(
			shortID(b.ID),
			b.Bettor,
			b.Direction.String(),
			b.Stake.StringFixed(2),
			b.EntryPrice.StringFixed(4),
			"-",
			"-",
			string(domain.PayoutDeferred),
		)
	}
	table.Render()
	fmt.Fprintf(c.out, "  volume %s | payout %s | realized %s\n",
		rep.TotalVolume.StringFixed(2), rep.TotalPayout.StringFixed(2), signed(rep.RealizedProfit.StringFixed(2)))
}

// ReportInput agrupa los datos del reporte de administración.
type ReportInput struct {
	Rounds   []domain.Round
	Today    *domain.DailyTarget
	Deferred []domain.Bet
	Now      time.Time
}

// PrintReport imprime rondas recientes, el objetivo diario y los pagos pendientes.
func (c *Console) PrintReport(in ReportInput) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n=== ROUND REPORT (%s UTC) ===\n\n", in.Now.UTC().Format("2006-01-02 15:04"))

	if len(in.Rounds) == 0 {
		fmt.Fprintln(c.out, "  (no rounds)")
	} else {
		table := tablewriter.NewWriter(c.out)
		table.Header("Round", "Start", "Status", "Start $", "Final $", "Outcome")
		for _, r := range in.Rounds {
			final := "-"
			if r.FinalPrice != nil {
				final = r.FinalPrice.StringFixed(4)
			}
			table.Append(
				shortID(r.ID),
				r.StartAt.Format("15:04:05"),
				string(r.Status),
				r.StartPrice.StringFixed(4),
				final,
				outcomeLabel(r.Outcome),
			)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "\n── TODAY ──\n")
	if d := in.Today; d != nil {
		fmt.Fprintf(c.out, "  Rounds:   %d (house W:%d L:%d)\n", d.RoundsPlayed, d.HouseWins, d.HouseLosses)
		fmt.Fprintf(c.out, "  Volume:   %s | Payout: %s\n", d.TotalVolume.StringFixed(2), d.TotalPayout.StringFixed(2))
		fmt.Fprintf(c.out, "  Profit:   %s / target %s", signed(d.Profit().StringFixed(2)), d.TargetAmount.StringFixed(2))
		if d.Achieved {
			fmt.Fprint(c.out, "  ✓ achieved")
		}
		fmt.Fprintln(c.out)
		fmt.Fprintf(c.out, "  Balance:  %s → %s\n", d.StartingBalance.StringFixed(2), d.CurrentBalance.StringFixed(2))
	} else {
		fmt.Fprintln(c.out, "  (no rounds settled today)")
	}

	fmt.Fprintf(c.out, "\n── DEFERRED PAYOUTS (%d) ──\n", len(in.Deferred))
	for _, b := range in.Deferred {
		fmt.Fprintf(c.out, "  %s  %-42s %s %s  %s\n", b.ID, b.Bettor, b.Direction, b.Stake.StringFixed(2), b.PayoutError)
	}
	if len(in.Deferred) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	}
	fmt.Fprintln(c.out)
}

func outcomeLabel(d domain.Direction) string {
	if !d.Valid() {
		return "FLAT"
	}
	return d.String()
}

func signed(s string) string {
	if len(s) > 0 && s[0] != '-' {
		return "+" + s
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
