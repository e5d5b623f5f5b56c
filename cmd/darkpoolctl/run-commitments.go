package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

func runCommitments(c *cli.Context) error {
	return withSession(c, func(s *session) error {
		list, err := s.svc.Predictions.Commitments(s.ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(s.m.w, "no stored commitments")
			return nil
		}

		table := tablewriter.NewWriter(s.m.w)
		table.Header("Market", "Side", "Amount (APT)", "Committed", "Hash")
		for _, cm := range list {
			hash := cm.CommitHash
			if !s.m.verbose {
				hash = truncate(hash, 18)
			}
			table.Append(
				fmt.Sprintf("%d", cm.MarketID),
				cm.Side.String(),
				domain.FormatOctas(cm.Amount),
				cm.CreatedAt().UTC().Format(time.RFC3339),
				hash,
			)
		}
		table.Render()
		return nil
	})
}

func runClear(c *cli.Context) error {
	if !c.Bool("yes") {
		return errors.New("clearing loses every unrevealed opening; pass --yes to confirm")
	}
	return withSession(c, func(s *session) error {
		if err := s.svc.Predictions.ClearCommitments(s.ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.m.w, "commitments cleared")
		return nil
	})
}
