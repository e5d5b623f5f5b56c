package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	s3blob "github.com/alanyoungcy/darkpool/internal/blob/s3"
)

func runArchives(c *cli.Context) error {
	month := c.String("month")
	if month != "" {
		if _, err := time.Parse("2006-01", month); err != nil {
			return fmt.Errorf("month %q is not YYYY-MM", month)
		}
	}

	return withSession(c, func(s *session) error {
		if s.deps.ArchiveReader == nil {
			return errors.New("history archiving is disabled; set s3.enabled")
		}

		if path := c.String("show"); path != "" {
			entries, err := s3blob.ReadHistory(s.ctx, s.deps.ArchiveReader, path)
			if err != nil {
				return err
			}
			return printJSON(s.m.w, entries)
		}

		objects, err := s.deps.ArchiveReader.List(s.ctx, month)
		if err != nil {
			return err
		}
		if len(objects) == 0 {
			fmt.Fprintln(s.m.w, "no archives")
			return nil
		}

		table := tablewriter.NewWriter(s.m.w)
		table.Header("Path", "Size", "Modified")
		for _, o := range objects {
			table.Append(o.Path, fmt.Sprintf("%d", o.Size), o.LastModified.UTC().Format(time.RFC3339))
		}
		table.Render()
		return nil
	})
}
