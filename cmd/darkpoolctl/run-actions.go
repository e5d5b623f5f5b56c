package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

func runCommit(c *cli.Context) error {
	id, err := requireMarket(c)
	if err != nil {
		return err
	}
	side, err := domain.ParseSide(c.String("side"))
	if err != nil {
		return err
	}
	amount, err := domain.ParseAPTToOctas(c.String("amount"))
	if err != nil {
		return err
	}

	return withSession(c, func(s *session) error {
		if s.m.verbose {
			fmt.Fprintf(s.m.e, "market: %d\n", id)
			fmt.Fprintf(s.m.e, "side: %s\n", side)
			fmt.Fprintf(s.m.e, "amount: %d octas\n", amount)
		}
		market, err := s.svc.Markets.RefreshForUser(s.ctx, id, s.svc.Predictions.Address())
		if err != nil {
			return err
		}
		return report(s.m.w, s.svc.Predictions.Commit(s.ctx, market, side, amount))
	})
}

func runReveal(c *cli.Context) error {
	id, err := requireMarket(c)
	if err != nil {
		return err
	}
	return withSession(c, func(s *session) error {
		market, err := s.svc.Markets.RefreshForUser(s.ctx, id, s.svc.Predictions.Address())
		if err != nil {
			return err
		}
		return report(s.m.w, s.svc.Predictions.Reveal(s.ctx, market))
	})
}

func runClaim(c *cli.Context) error {
	id, err := requireMarket(c)
	if err != nil {
		return err
	}
	return withSession(c, func(s *session) error {
		market, err := s.svc.Markets.RefreshForUser(s.ctx, id, s.svc.Predictions.Address())
		if err != nil {
			return err
		}
		return report(s.m.w, s.svc.Predictions.Claim(s.ctx, market))
	})
}

func runCreate(c *cli.Context) error {
	question := c.String("question")
	if question == "" {
		return errors.New("question is required")
	}
	return withSession(c, func(s *session) error {
		out := s.svc.Predictions.CreateMarket(s.ctx, question, c.Uint64("commit-hours"), c.Uint64("reveal-hours"))
		return report(s.m.w, out)
	})
}

// report prints the outcome and turns a failure into the command's error.
func report(w io.Writer, out domain.ActionOutcome) error {
	if err := printJSON(w, out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("%s failed: %s", out.Action, out.Reason)
	}
	return nil
}
