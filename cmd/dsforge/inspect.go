package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/xxxsen/dsforge/internal/config"
	"github.com/xxxsen/dsforge/internal/model"
	"github.com/xxxsen/dsforge/internal/repo"
	"github.com/xxxsen/dsforge/internal/segment"
)

func newSegmentCmd() *cobra.Command {
	var (
		file    string
		segCfg  config.SegmentConfig
		showToc bool
	)
	cmd := &cobra.Command{
		Use:   "segment",
		Short: "split a local document and print the drafted chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			segCfg.Normalize()
			drafts, err := segment.Segment(cmd.Context(), filepath.Base(file), string(raw), segCfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDrafts(drafts))
			if showToc {
				fmt.Fprintln(cmd.OutOrStdout(), segment.ExtractToc(string(raw)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "document to segment")
	cmd.Flags().StringVar(&segCfg.Type, "type", "", "segmenter: default, fixed, token, code or custom")
	cmd.Flags().IntVar(&segCfg.ChunkSize, "chunk-size", 0, "window size for fixed, token and code segmenters")
	cmd.Flags().IntVar(&segCfg.ChunkOverlap, "chunk-overlap", 0, "window overlap")
	cmd.Flags().StringVar(&segCfg.Separator, "separator", "", "separator for the custom segmenter")
	cmd.Flags().StringVar(&segCfg.Language, "language", "", "source language for the code segmenter")
	cmd.Flags().BoolVar(&showToc, "toc", false, "also print the extracted table of contents")
	return cmd
}

func renderDrafts(drafts []model.ChunkDraft) string {
	rows := make([][]string, 0, len(drafts))
	for _, d := range drafts {
		rows = append(rows, []string{d.Name, strconv.Itoa(d.Size), preview(d.Summary, 60)})
	}
	return renderTable([]string{"Name", "Size", "Summary"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft})
}

func newTaskCmd() *cobra.Command {
	var configPath, taskID string
	cmd := &cobra.Command{
		Use:   "task",
		Short: "print the progress of a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID == "" {
				return fmt.Errorf("--id is required")
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			d, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()
			t, err := repo.NewTaskRepo(d).GetByID(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTask(t))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json or config.toml")
	cmd.Flags().StringVar(&taskID, "id", "", "task id")
	return cmd
}

func renderTask(t *model.Task) string {
	rows := [][]string{
		{"ID", t.ID},
		{"Project", t.ProjectID},
		{"Type", string(t.Type)},
		{"Status", string(t.Status)},
		{"Progress", fmt.Sprintf("%d / %d", t.CompletedCount, t.TotalCount)},
		{"Detail", t.Detail},
		{"Started", formatUnix(t.StartTime)},
		{"Ended", formatUnix(t.EndTime)},
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func formatUnix(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format(time.RFC3339)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
