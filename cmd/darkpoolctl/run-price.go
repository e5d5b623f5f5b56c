package main

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

func runPrice(c *cli.Context) error {
	symbol := c.String("symbol")
	return withSession(c, func(s *session) error {
		p, err := s.svc.Prices.GetPrice(s.ctx, symbol)
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(s.m.w)
		table.Header("Symbol", "Price", "Confidence", "Published")
		table.Append(
			p.Symbol,
			fmt.Sprintf("%.2f", p.Price),
			fmt.Sprintf("±%.2f", p.Confidence),
			p.PublishTime.UTC().Format(time.RFC3339),
		)
		table.Render()
		return nil
	})
}
