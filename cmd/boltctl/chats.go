package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	hbiz "github.com/AGIOS-UPDATED/midday-test/internal/history/biz"
	htypes "github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/output"
)

var (
	exportFormat  string
	exportOut     string
	rewindInPlace bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List saved chats grouped by date",
	RunE: func(cmd *cobra.Command, args []string) error {
		uc, err := getHistory(cmd.Context())
		if err != nil {
			return err
		}
		return listRun(cmd.Context(), uc)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a chat and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uc, err := getHistory(cmd.Context())
		if err != nil {
			return err
		}
		return showRun(cmd.Context(), uc, args[0])
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a chat as JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uc, err := getHistory(cmd.Context())
		if err != nil {
			return err
		}
		w := io.Writer(ui.Out)
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOut, err)
			}
			defer f.Close()
			w = f
		}
		if err := exportRun(cmd.Context(), uc, args[0], exportFormat, w); err != nil {
			return err
		}
		if exportOut != "" {
			ui.Success("Exported chat %s to %s", args[0], output.Cyan(exportOut))
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a chat from an exported JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uc, err := getHistory(cmd.Context())
		if err != nil {
			return err
		}
		return importRun(cmd.Context(), uc, args[0])
	},
}

var duplicateCmd = &cobra.Command{
	Use:     "duplicate <id>",
	Aliases: []string{"dup"},
	Short:   "Duplicate a chat",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uc, err := getHistory(cmd.Context())
		if err != nil {
			return err
		}
		return duplicateRun(cmd.Context(), uc, args[0])
	},
}

var rewindCmd = &cobra.Command{
	Use:   "rewind <id> <message-id>",
	Short: "Keep a chat only up to the given message",
	Long: `rewind creates a new chat holding the messages up to and including
<message-id>. With --in-place the original chat is truncated instead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		uc, err := getHistory(cmd.Context())
		if err != nil {
			return err
		}
		return rewindRun(cmd.Context(), uc, args[0], args[1], rewindInPlace)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a chat",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uc, err := getHistory(cmd.Context())
		if err != nil {
			return err
		}
		return deleteRun(cmd.Context(), uc, args[0])
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format: json or yaml")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Write to a file instead of stdout")
	rewindCmd.Flags().BoolVar(&rewindInPlace, "in-place", false, "Truncate the original chat")

	rootCmd.AddCommand(listCmd, showCmd, exportCmd, importCmd, duplicateCmd, rewindCmd, deleteCmd)
}

func listRun(ctx context.Context, uc *hbiz.HistoryUseCase) error {
	groups, err := uc.ListChats(ctx)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		ui.Info("No saved chats.")
		return nil
	}

	table := ui.Table([]string{"Group", "ID", "URL ID", "Description", "Messages", "Updated"})
	for _, g := range groups {
		for _, item := range g.Items {
			_ = table.Append([]string{
				output.Bold(g.Label),
				output.Cyan(item.ID),
				item.URLID,
				item.Description,
				strconv.Itoa(len(item.Messages)),
				item.Timestamp.Local().Format("2006-01-02 15:04"),
			})
		}
	}
	return table.Render()
}

func showRun(ctx context.Context, uc *hbiz.HistoryUseCase, id string) error {
	item, err := uc.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s %s\n", output.Bold("Chat:"), output.Cyan(item.ID))
	if item.URLID != "" {
		fmt.Fprintf(ui.Out, "%s %s\n", output.Bold("URL ID:"), item.URLID)
	}
	if item.Description != "" {
		fmt.Fprintf(ui.Out, "%s %s\n", output.Bold("Description:"), item.Description)
	}
	fmt.Fprintf(ui.Out, "%s %s\n\n", output.Bold("Updated:"), item.Timestamp.Local().Format("2006-01-02 15:04:05"))

	table := ui.Table([]string{"ID", "Role", "Content"})
	for _, m := range item.Messages {
		_ = table.Append([]string{m.ID, output.RoleColor(string(m.Role)), preview(m.Content, 80)})
	}
	return table.Render()
}

// preview 取第一行并截断
func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	if r := []rune(s); len(r) > n {
		s = string(r[:n]) + "…"
	}
	return s
}

func exportRun(ctx context.Context, uc *hbiz.HistoryUseCase, id, format string, w io.Writer) error {
	data, err := uc.Export(ctx, id)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q (want json or yaml)", format)
	}
}

func importRun(ctx context.Context, uc *hbiz.HistoryUseCase, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var data htypes.ExportData
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &data)
	default:
		err = json.Unmarshal(raw, &data)
	}
	if err != nil {
		return fmt.Errorf("invalid chat file format: %w", err)
	}

	urlID, err := uc.ImportChat(ctx, data.Description, data.Messages)
	if err != nil {
		return err
	}
	ui.Success("Imported %d messages as %s", len(data.Messages), output.Cyan(urlID))
	return nil
}

func duplicateRun(ctx context.Context, uc *hbiz.HistoryUseCase, id string) error {
	urlID, err := uc.Duplicate(ctx, id)
	if err != nil {
		return err
	}
	ui.Success("Duplicated chat %s as %s", id, output.Cyan(urlID))
	return nil
}

func rewindRun(ctx context.Context, uc *hbiz.HistoryUseCase, id, messageID string, inPlace bool) error {
	item, err := uc.Load(ctx, id, messageID)
	if err != nil {
		return err
	}

	if inPlace {
		if err := uc.Save(ctx, item); err != nil {
			return err
		}
		ui.Success("Rewound chat %s to message %s (%d messages)", output.Cyan(item.ID), messageID, len(item.Messages))
		return nil
	}

	description := item.Description
	if description == "" {
		description = "Chat"
	}
	urlID, err := uc.CreateFromMessages(ctx, description+" (rewind)", item.Messages)
	if err != nil {
		return err
	}
	ui.Success("Created %s with %d messages up to %s", output.Cyan(urlID), len(item.Messages), messageID)
	return nil
}

func deleteRun(ctx context.Context, uc *hbiz.HistoryUseCase, id string) error {
	if err := uc.Delete(ctx, id); err != nil {
		return err
	}
	ui.Success("Deleted chat %s", id)
	return nil
}
