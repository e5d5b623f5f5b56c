package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/service"
)

func runMarkets(c *cli.Context) error {
	return withSession(c, func(s *session) error {
		watch := s.m.cfg.Markets.Watch
		if len(watch) == 0 {
			fmt.Fprintln(s.m.w, "no markets configured (set markets.watch)")
			return nil
		}
		views := s.svc.Markets.Views(s.ctx, watch, s.svc.Predictions.Address())
		printViews(s.m.w, views)
		return nil
	})
}

func runMarket(c *cli.Context) error {
	id, err := requireMarket(c)
	if err != nil {
		return err
	}
	return withSession(c, func(s *session) error {
		v, err := s.svc.Markets.View(s.ctx, id, s.svc.Predictions.Address())
		if err != nil {
			return err
		}
		if s.m.verbose {
			return printJSON(s.m.w, v)
		}
		printViews(s.m.w, []service.MarketView{v})
		return nil
	})
}

func printViews(w io.Writer, views []service.MarketView) {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Question", "Phase", "Yes pool", "No pool", "Remaining", "State", "Actions")
	for _, v := range views {
		m := v.Market
		yes, no := domain.FormatOctas(m.YesPool), domain.FormatOctas(m.NoPool)
		if v.PoolHidden {
			yes, no = "hidden", "hidden"
		}
		table.Append(
			fmt.Sprintf("%d", m.ID),
			truncate(m.Question, 48),
			m.Phase.String(),
			yes,
			no,
			v.TimeRemainingLabel,
			string(v.State),
			actions(v),
		)
	}
	table.Render()
}

func actions(v service.MarketView) string {
	switch {
	case v.CanCommit:
		return "commit"
	case v.CanReveal:
		return "reveal"
	case v.CanClaim:
		return "claim"
	default:
		return "-"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
